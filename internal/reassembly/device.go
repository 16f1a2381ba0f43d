package reassembly

import (
	"sync"
	"time"
)

// DeviceState holds one device's in-flight transaction table, keyed by the
// 3-bit trx-id. It is created lazily on first uplink and persists for the
// process lifetime; individual records are purged by age, but the device
// entry itself is never destroyed. Callers serialize access to a device's
// state with Lock/Unlock so the reassembler's first-write-wins invariant and
// the trx map never race.
type DeviceState struct {
	mu     sync.Mutex
	trxMap map[byte]*record
}

func newDeviceState() *DeviceState {
	return &DeviceState{trxMap: make(map[byte]*record)}
}

// Lock serializes all processing for this device's fragments.
func (d *DeviceState) Lock() { d.mu.Lock() }

// Unlock releases the per-device lock acquired by Lock.
func (d *DeviceState) Unlock() { d.mu.Unlock() }

func (d *DeviceState) getOrCreate(trxID byte) *record {
	rec, ok := d.trxMap[trxID]
	if !ok {
		rec = newRecord()
		d.trxMap[trxID] = rec
	}
	return rec
}

func (d *DeviceState) delete(trxID byte) {
	delete(d.trxMap, trxID)
}

// purge drops any record older than ttl. Must be called with the device
// locked; records older than ttl are purged at the next interaction with
// the owning device.
func (d *DeviceState) purge(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	for id, rec := range d.trxMap {
		if rec.lastEpoch.Before(cutoff) {
			delete(d.trxMap, id)
		}
	}
}

// TrxCount reports the number of in-flight records, for introspection.
func (d *DeviceState) TrxCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.trxMap)
}

// Store is the process-wide table of DeviceState, keyed by device key
// (e.g. dev_eui). It never evicts a device entry: state persists for the
// process lifetime, with destruction limited to per-trx purging.
type Store struct {
	mu      sync.Mutex
	devices map[string]*DeviceState
	ttl     time.Duration
}

// NewStore builds a Store that purges trx records older than ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{devices: make(map[string]*DeviceState), ttl: ttl}
}

// Get returns (creating if necessary) the DeviceState for key, purging any
// aged-out records for that device before returning it.
func (s *Store) Get(key string) *DeviceState {
	s.mu.Lock()
	ds, ok := s.devices[key]
	if !ok {
		ds = newDeviceState()
		s.devices[key] = ds
	}
	s.mu.Unlock()

	ds.Lock()
	ds.purge(s.ttl)
	ds.Unlock()
	return ds
}

// Snapshot returns a shallow, read-only view of every device's in-flight trx
// count, for the /api/device_states introspection endpoint.
func (s *Store) Snapshot() map[string]int {
	s.mu.Lock()
	keys := make([]string, 0, len(s.devices))
	states := make([]*DeviceState, 0, len(s.devices))
	for k, ds := range s.devices {
		keys = append(keys, k)
		states = append(states, ds)
	}
	s.mu.Unlock()

	out := make(map[string]int, len(keys))
	for i, k := range keys {
		out[k] = states[i].TrxCount()
	}
	return out
}
