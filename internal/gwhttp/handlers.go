package gwhttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"elpp-gateway/internal/bitbuf"
	"elpp-gateway/internal/codec"
	"elpp-gateway/internal/elpp"
	"elpp-gateway/internal/reassembly"
)

// uplinkRequest is the HTTP ingress body.
type uplinkRequest struct {
	Port        int    `json:"port"`
	Payload     string `json:"payload"`
	DevEUI      string `json:"dev_eui"`
	DownlinkURL string `json:"downlink_url,omitempty"`
	ReportedAt  int64  `json:"reported_at,omitempty"`
}

// handleUplink decodes one ELPP uplink, drives the reassembler, and either
// reports pending status, dispatches a completed transaction, or services a
// TAPOS request.
func (s *Server) handleUplink(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
	defer cancel()

	var req uplinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("decoding request body: %w", err))
		return
	}
	if req.Port != s.port {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("port %d does not match configured port %d", req.Port, s.port))
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("decoding base64 payload: %w", err))
		return
	}

	result := s.reasm.Decode(payload, req.DevEUI)
	s.metrics.fragmentsDecoded.WithLabelValues(resultKindLabel(result.Kind)).Inc()

	switch result.Kind {
	case reassembly.Error:
		s.metrics.trxErrors.WithLabelValues(decodeErrKind(result.Err)).Inc()
		s.writeError(w, http.StatusInternalServerError, result.Err)
	case reassembly.Incomplete:
		s.writeText(w, http.StatusOK, result.Status)
	case reassembly.TaposRequest:
		s.metrics.taposRequests.Inc()
		s.serveTaposRequest(ctx, w, req, result)
	case reassembly.Complete:
		s.metrics.trxCompleted.Inc()
		s.serveDispatch(ctx, w, req, result)
	default:
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("unhandled result kind"))
	}
}

// serveTaposRequest answers a device's channel-4 TAPOS request: if the
// chain's TAPOS metadata isn't fresh, the ingress itself errors (no
// downlink); otherwise it POSTs the ELPP-encoded response fragment to the
// device's downlink_url.
func (s *Server) serveTaposRequest(ctx context.Context, w http.ResponseWriter, req uplinkRequest, result *reassembly.Result) {
	cs := s.manager.Chain(result.TaposReq.ChainID)
	if cs == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("no tapos state configured for chain %d", result.TaposReq.ChainID))
		return
	}
	info := cs.Tapos()
	if !info.Fresh() {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("no tapos metadata held yet for chain %d", result.TaposReq.ChainID))
		return
	}

	now := time.Now()
	values := []codec.Value{
		{Kind: codec.U8, Int: int64(result.TaposReq.ChainID)},
		{Kind: codec.U8, Int: int64(result.TaposReq.ReqID)},
		{Kind: codec.U32, Int: now.Unix()},
		{Kind: codec.U16, Int: int64(now.Nanosecond() / int(time.Millisecond))},
		{Kind: codec.U16, Int: int64(info.RefBlockNum)},
		{Kind: codec.U32, Int: int64(info.RefBlockPrefix)},
	}
	wr := bitbuf.NewWriter()
	if err := codec.EncodeChannel(wr, elpp.ChannelTaposResponse, elpp.TaposResponseSchema(), values); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("encoding tapos response: %w", err))
		return
	}

	if req.DownlinkURL != "" {
		if err := s.postDownlink(ctx, req.DownlinkURL, wr.Bytes()); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("posting downlink: %w", err))
			return
		}
	}
	s.writeText(w, http.StatusOK, "tapos response issued")
}

func (s *Server) postDownlink(ctx context.Context, url string, payloadRaw []byte) error {
	body, err := json.Marshal(map[string]any{
		"payload_raw": base64.StdEncoding.EncodeToString(payloadRaw),
		"port":        s.port,
		"confirmed":   false,
	})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// serveDispatch enqueues a completed transaction onto its chain's dispatch
// queue and waits for the sweep to report an outcome, surfacing the
// blockchain API's response body to the ingress caller.
func (s *Server) serveDispatch(ctx context.Context, w http.ResponseWriter, req uplinkRequest, result *reassembly.Result) {
	cs := s.manager.Chain(result.Chain)
	if cs == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("no dispatch queue configured for chain %d", result.Chain))
		return
	}
	jsonBody, err := json.Marshal(result.Trx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("marshaling transaction: %w", err))
		return
	}
	done := cs.Dispatch.Enqueue(string(jsonBody), req.DevEUI)
	cs.Sweep(ctx, s.manager.Client(), s.manager.Limiter())

	select {
	case res := <-done:
		if res.Err != nil {
			s.metrics.dispatchOutcomes.WithLabelValues("error").Inc()
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("dispatching transaction: %w", res.Err))
			return
		}
		s.metrics.dispatchOutcomes.WithLabelValues(fmt.Sprintf("%d", res.StatusCode)).Inc()
		s.writeText(w, http.StatusOK, res.Body)
	case <-ctx.Done():
		s.metrics.dispatchOutcomes.WithLabelValues("timeout").Inc()
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("dispatch timed out waiting for a sweep"))
	}
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func resultKindLabel(k reassembly.ResultKind) string {
	switch k {
	case reassembly.Incomplete:
		return "incomplete"
	case reassembly.Complete:
		return "complete"
	case reassembly.TaposRequest:
		return "tapos_request"
	case reassembly.Error:
		return "error"
	default:
		return "unknown"
	}
}

func decodeErrKind(err error) string {
	if de, ok := err.(*codec.DecodeError); ok {
		return de.Kind.String()
	}
	return "unknown"
}
