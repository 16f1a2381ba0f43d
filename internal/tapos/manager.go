package tapos

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	successMin = 5 * time.Minute
	successMax = 10 * time.Minute
	errorMin   = 10 * time.Second
	errorMax   = 30 * time.Second
)

// getInfoResponse mirrors the subset of /v1/chain/get_info this manager
// reads.
type getInfoResponse struct {
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
	LastIrreversibleBlockID  string `json:"last_irreversible_block_id"`
	ChainID                  string `json:"chain_id"`
	ServerVersionString      string `json:"server_version_string"`
}

// Observer receives a point-in-time snapshot of one chain's TAPOS freshness
// and API-pool quarantine count after each tick, so a caller can mirror them
// into its own metrics without this package depending on a metrics library.
type Observer interface {
	ObserveChain(chainID byte, refBlockNum uint16, quarantinedCount int)
}

// Manager runs one independent polling loop per chain, refreshing TAPOS
// freshness and sweeping the chain's dispatch queue after every tick whose
// get_info poll succeeded.
type Manager struct {
	clock    clock.Clock
	client   *http.Client
	logger   *logrus.Logger
	limiter  *rate.Limiter
	observer Observer

	mu        sync.Mutex
	chains    map[byte]*ChainState
	closing   chan struct{}
	closeOnce sync.Once
}

// defaultEgressRate bounds this process's combined get_info/send_transaction
// calls across all chains, so a flapping host's quarantine-decay retries
// can't saturate outbound HTTP.
const defaultEgressRate = 10

// NewManager builds a Manager. A nil clk defaults to the real wall clock; a
// nil logger defaults to a standalone logrus.Logger.
func NewManager(client *http.Client, clk clock.Clock, logger *logrus.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		clock:   clk,
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(defaultEgressRate), defaultEgressRate),
		chains:  make(map[byte]*ChainState),
		closing: make(chan struct{}),
	}
}

// Register adds a chain to the manager. It does not start a control loop:
// Run starts loops only for the chains registered before it is called.
func (m *Manager) Register(cs *ChainState) {
	m.mu.Lock()
	m.chains[cs.ChainID] = cs
	m.mu.Unlock()
}

// Client returns the HTTP client the manager uses for outbound calls, so an
// ingress handler can trigger an immediate dispatch sweep after enqueueing a
// completed transaction.
func (m *Manager) Client() *http.Client { return m.client }

// Limiter returns the rate limiter bounding this manager's outbound HTTP
// calls, so a caller driving an out-of-band dispatch sweep shares the same
// egress budget as the control loop's get_info polling.
func (m *Manager) Limiter() *rate.Limiter { return m.limiter }

// SetObserver registers o to receive a per-chain metrics snapshot after
// every tick. Passing nil disables observation.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Chain returns the registered state for chainID, or nil.
func (m *Manager) Chain(chainID byte) *ChainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chains[chainID]
}

// Run starts one control-loop goroutine per registered chain, supervised by
// an errgroup, and blocks until every loop has exited (via ctx cancellation
// or Close).
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	chains := make([]*ChainState, 0, len(m.chains))
	for _, cs := range m.chains {
		chains = append(chains, cs)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, cs := range chains {
		cs := cs
		g.Go(func() error {
			m.controlLoop(gctx, cs)
			return nil
		})
	}
	return g.Wait()
}

// Close stops all control loops; Run's errgroup returns once they exit.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.closing) })
}

// controlLoop runs one chain's poll/select/fetch/sweep cycle until canceled.
func (m *Manager) controlLoop(ctx context.Context, cs *ChainState) {
	for {
		err := m.tick(ctx, cs)
		wait, jitterErr := scheduleNext(err == nil)
		if jitterErr != nil {
			wait = errorMin
		}
		timer := m.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.closing:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick performs one selection + get_info poll + dispatch sweep for cs.
func (m *Manager) tick(ctx context.Context, cs *ChainState) error {
	entry, err := cs.Select()
	if err != nil {
		m.logger.WithFields(logrus.Fields{"chain": cs.ChainID, "err": err}).Warn("tapos api pool exhausted")
		m.observeChain(cs)
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	info, version, err := fetchGetInfo(ctx, m.client, entry, cs.ExpectedChainHash)
	if err != nil {
		cs.recordFailure(entry)
		m.logger.WithFields(logrus.Fields{"chain": cs.ChainID, "host": entry.Host, "err": err}).Warn("get_info failed")
		m.observeChain(cs)
		return err
	}
	cs.recordSuccess(entry, info, version)
	m.logger.WithFields(logrus.Fields{
		"chain":            cs.ChainID,
		"host":             entry.Host,
		"ref_block_num":    info.RefBlockNum,
		"ref_block_prefix": info.RefBlockPrefix,
	}).Info("tapos refreshed")
	m.observeChain(cs)

	cs.Sweep(ctx, m.client, m.limiter)
	return nil
}

// observeChain reports cs's current ref_block_num and quarantined-host count
// to the registered Observer, if any.
func (m *Manager) observeChain(cs *ChainState) {
	m.mu.Lock()
	observer := m.observer
	m.mu.Unlock()
	if observer == nil {
		return
	}
	quarantined := 0
	for _, e := range cs.Snapshot() {
		if e.Errors >= ErrorsMax {
			quarantined++
		}
	}
	observer.ObserveChain(cs.ChainID, cs.Tapos().RefBlockNum, quarantined)
}

// fetchGetInfo issues the GET and computes ref_block_num/ref_block_prefix.
func fetchGetInfo(ctx context.Context, client *http.Client, entry *APIEntry, expectedChainHash string) (Info, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL()+"/v1/chain/get_info", nil)
	if err != nil {
		return Info{}, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Info{}, "", err
	}
	defer resp.Body.Close()

	var body getInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, "", err
	}
	if expectedChainHash != "" && body.ChainID != expectedChainHash {
		return Info{}, "", fmt.Errorf("tapos: chain_id mismatch: got %s want %s", body.ChainID, expectedChainHash)
	}

	idBytes, err := hex.DecodeString(body.LastIrreversibleBlockID)
	if err != nil || len(idBytes) < 12 {
		return Info{}, "", fmt.Errorf("tapos: malformed last_irreversible_block_id")
	}
	prefix := uint32(idBytes[8]) | uint32(idBytes[9])<<8 | uint32(idBytes[10])<<16 | uint32(idBytes[11])<<24

	info := Info{
		AcqEpoch:       time.Now(),
		RefBlockNum:    uint16(body.LastIrreversibleBlockNum & 0xFFFF),
		RefBlockPrefix: prefix,
	}
	return info, body.ServerVersionString, nil
}

// scheduleNext draws the next tick's jittered interval: a short backoff
// window on failure, a longer refresh window on success.
func scheduleNext(success bool) (time.Duration, error) {
	lo, hi := errorMin, errorMax
	if success {
		lo, hi = successMin, successMax
	}
	span := int64(hi - lo)
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}
	return lo + time.Duration(n.Int64()), nil
}
