package tapos

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DispatchResult is delivered to the ingress handler once a queued item has
// been swept, whether or not the POST itself succeeded.
type DispatchResult struct {
	StatusCode int
	Body       string
	Err        error
}

// item is one FIFO entry awaiting dispatch.
type item struct {
	epoch     time.Time
	started   bool
	json      string
	deviceKey string
	done      chan DispatchResult
}

// DispatchQueue is a per-chain FIFO of completed transactions awaiting
// delivery to the chain's most-recently-successful API host.
type DispatchQueue struct {
	mu    sync.Mutex
	items []*item
}

// NewDispatchQueue returns an empty queue.
func NewDispatchQueue() *DispatchQueue {
	return &DispatchQueue{}
}

// Enqueue appends a not-started item and returns a channel that receives its
// eventual dispatch outcome, so the ingress handler can surface the
// blockchain API's response body.
func (q *DispatchQueue) Enqueue(jsonBody, deviceKey string) <-chan DispatchResult {
	done := make(chan DispatchResult, 1)
	q.mu.Lock()
	q.items = append(q.items, &item{
		epoch:     time.Now(),
		json:      jsonBody,
		deviceKey: deviceKey,
		done:      done,
	})
	q.mu.Unlock()
	return done
}

// Len reports the queue's current depth, for introspection.
func (q *DispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// takeNextPending pops the first not-started item, if any, marking it
// started and removing it from the queue. The caller performs the blocking
// POST outside of q's lock.
func (q *DispatchQueue) takeNextPending() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if !it.started {
			it.started = true
			q.items = append(q.items[:i], q.items[i+1:]...)
			return it
		}
	}
	return nil
}

// Sweep drains every pending item in the queue against the chain's current
// api_last, exactly once each: on any response or error the item is removed
// unconditionally, without retry. limiter, if non-nil, throttles the
// dispatch POSTs against the same egress budget as get_info polling.
func (cs *ChainState) Sweep(ctx context.Context, client *http.Client, limiter *rate.Limiter) {
	for {
		api := cs.APILast()
		if api == nil {
			return
		}
		it := cs.Dispatch.takeNextPending()
		if it == nil {
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				it.done <- DispatchResult{Err: err}
				close(it.done)
				continue
			}
		}
		res := postTransaction(ctx, client, api, it.json)
		it.done <- res
		close(it.done)
	}
}

func postTransaction(ctx context.Context, client *http.Client, api *APIEntry, jsonBody string) DispatchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.URL()+"/v1/chain/send_transaction", bytes.NewBufferString(jsonBody))
	if err != nil {
		return DispatchResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return DispatchResult{Err: err}
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return DispatchResult{StatusCode: resp.StatusCode, Body: buf.String()}
}
