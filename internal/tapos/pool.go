// Package tapos implements the per-chain TAPOS manager (reference-block
// freshness poller with a quarantined API-host pool) and the per-chain
// dispatch queue that forwards completed transactions to the blockchain.
package tapos

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Quarantine thresholds.
const (
	ErrorsMax = 5
	CheckMax  = 10
)

// ErrAPIPoolExhausted is returned by Select when every pool member is
// quarantined.
var ErrAPIPoolExhausted = fmt.Errorf("tapos: api pool exhausted")

// APIEntry is one host in a chain's rotating API pool.
type APIEntry struct {
	Method       string // URL scheme + separator, e.g. "http://"
	Host         string
	Errors       int
	CheckCount   int
	UseCount     int
	VersionFound string
}

// URL returns the entry's get_info/send_transaction base URL.
func (e *APIEntry) URL() string { return e.Method + e.Host }

// quarantined reports whether e is currently excluded from selection.
func (e *APIEntry) quarantined() bool { return e.Errors >= ErrorsMax }

// Info is the freshest reference-block metadata held for a chain.
type Info struct {
	AcqEpoch       time.Time
	RefBlockNum    uint16
	RefBlockPrefix uint32
}

// Fresh reports whether tapos metadata has ever been acquired.
func (i Info) Fresh() bool { return !i.AcqEpoch.IsZero() }

// ChainState holds one chain's TAPOS freshness, API pool, and dispatch
// queue. TAPOS freshness, the pool, and api_last are guarded by a single
// mutex independent of every other chain's; the dispatch queue has its own.
type ChainState struct {
	mu                sync.Mutex
	ChainID           byte
	ExpectedChainHash string
	tapos             Info
	pool              []*APIEntry
	apiLast           *APIEntry
	Dispatch          *DispatchQueue
}

// NewChainState builds a ChainState for one chain from its seeded API pool.
func NewChainState(chainID byte, expectedChainHash string, pool []*APIEntry) *ChainState {
	return &ChainState{
		ChainID:           chainID,
		ExpectedChainHash: expectedChainHash,
		pool:              pool,
		Dispatch:          NewDispatchQueue(),
	}
}

// Tapos returns the freshest TAPOS metadata held for this chain.
func (cs *ChainState) Tapos() Info {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.tapos
}

// APILast returns the API entry most recently used successfully, or nil.
func (cs *ChainState) APILast() *APIEntry {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.apiLast
}

// Select runs the quarantine-decay pass followed by up to CheckMax uniform
// draws, rejecting any quarantined entry.
func (cs *ChainState) Select() (*APIEntry, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, e := range cs.pool {
		if e.quarantined() {
			e.CheckCount++
			if e.CheckCount >= CheckMax {
				e.Errors--
				if e.Errors < 0 {
					e.Errors = 0
				}
				e.CheckCount = 0
			}
		}
	}

	if len(cs.pool) == 0 {
		return nil, ErrAPIPoolExhausted
	}
	for i := 0; i < CheckMax; i++ {
		idx, err := randIndex(len(cs.pool))
		if err != nil {
			return nil, err
		}
		e := cs.pool[idx]
		if !e.quarantined() {
			e.UseCount++
			return e, nil
		}
	}
	return nil, ErrAPIPoolExhausted
}

// recordSuccess applies a successful get_info poll: freshens tapos, decays
// the entry's error count, and promotes it to apiLast.
func (cs *ChainState) recordSuccess(entry *APIEntry, info Info, version string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tapos = info
	if entry.Errors > 0 {
		entry.Errors--
	}
	entry.VersionFound = version
	cs.apiLast = entry
}

// recordFailure applies a failed get_info poll: increments the entry's
// error count, which may push it into quarantine.
func (cs *ChainState) recordFailure(entry *APIEntry) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	entry.Errors++
}

// Seed directly sets a chain's held TAPOS info and api_last, bypassing the
// control loop. It is used by test fixtures; the control loop's freshness
// always flows through recordSuccess.
func (cs *ChainState) Seed(info Info, last *APIEntry) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tapos = info
	cs.apiLast = last
}

// Snapshot returns a copy of the pool's current state for introspection.
func (cs *ChainState) Snapshot() []APIEntry {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]APIEntry, len(cs.pool))
	for i, e := range cs.pool {
		out[i] = *e
	}
	return out
}

// randIndex draws a uniform index in [0, n) using crypto/rand, the same
// source this gateway uses everywhere it needs an unpredictable draw.
func randIndex(n int) (int, error) {
	big, err := rand.Int(rand.Reader, big0(n))
	if err != nil {
		return 0, err
	}
	return int(big.Int64()), nil
}

func big0(n int) *big.Int { return big.NewInt(int64(n)) }
