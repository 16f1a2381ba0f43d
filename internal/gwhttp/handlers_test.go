package gwhttp

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"elpp-gateway/internal/elpp"
	"elpp-gateway/internal/reassembly"
	"elpp-gateway/internal/tapos"
)

func newTestServer(t *testing.T) (*Server, *tapos.Manager) {
	t.Helper()
	store := reassembly.NewStore(300 * time.Second)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reasm := reassembly.New(store, logger)
	manager := tapos.NewManager(http.DefaultClient, nil, logger)

	cfg := Config{BindAddr: ":0", Port: 8, RequestDeadline: 2 * time.Second}
	s := NewServer(cfg, store, reasm, manager, logger)
	return s, manager
}

func uplinkBody(t *testing.T, payload []byte, devEUI, downlinkURL string) []byte {
	t.Helper()
	req := uplinkRequest{
		Port:        8,
		Payload:     base64.StdEncoding.EncodeToString(payload),
		DevEUI:      devEUI,
		DownlinkURL: downlinkURL,
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return b
}

func taposRequestFragment(chainID, reqID byte) []byte {
	return []byte{elpp.ChannelTaposRequest, chainID & 0x7, reqID}
}

func TestHandleUplinkIncomplete(t *testing.T) {
	s, _ := newTestServer(t)
	body := uplinkBody(t, []byte{elpp.ChannelTapos, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, "dev-1", "")
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleUplinkUnknownChannel(t *testing.T) {
	s, _ := newTestServer(t)
	body := uplinkBody(t, []byte{0x7F}, "dev-1", "")
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if out["error"] == "" {
		t.Fatalf("expected non-empty error field")
	}
}

func TestHandleUplinkWrongPortErrors(t *testing.T) {
	s, _ := newTestServer(t)
	raw := uplinkRequest{Port: 9, Payload: base64.StdEncoding.EncodeToString([]byte{0x00}), DevEUI: "dev-1"}
	b, _ := json.Marshal(raw)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for port mismatch, got %d", rr.Code)
	}
}

func TestHandleUplinkTaposRequestWithoutFreshInfoErrors(t *testing.T) {
	s, manager := newTestServer(t)
	manager.Register(tapos.NewChainState(1, "", []*tapos.APIEntry{{Method: "http://", Host: "x.example"}}))

	body := uplinkBody(t, taposRequestFragment(1, 42), "dev-1", "")
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when no tapos held, got %d", rr.Code)
	}
}

func TestHandleUplinkTaposRequestPostsDownlink(t *testing.T) {
	s, manager := newTestServer(t)
	cs := tapos.NewChainState(1, "", []*tapos.APIEntry{{Method: "http://", Host: "x.example"}})
	manager.Register(cs)

	var gotBody map[string]any
	downlinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer downlinkSrv.Close()

	// Seed freshness directly; the manager's own polling isn't under test here.
	seedTaposInfo(cs)

	body := uplinkBody(t, taposRequestFragment(1, 42), "dev-1", downlinkSrv.URL)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotBody == nil {
		t.Fatalf("expected downlink POST to be received")
	}
	if gotBody["port"].(float64) != 8 {
		t.Fatalf("unexpected downlink port: %v", gotBody["port"])
	}
	if gotBody["confirmed"].(bool) != false {
		t.Fatalf("expected confirmed=false")
	}
}

func TestHandleUplinkCompleteDispatchesAndReturnsBody(t *testing.T) {
	s, manager := newTestServer(t)

	chainSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"transaction_id":"abc123"}`))
	}))
	defer chainSrv.Close()

	entry := &tapos.APIEntry{Method: "http://", Host: chainSrv.URL[len("http://"):]}
	cs := tapos.NewChainState(1, "", []*tapos.APIEntry{entry})
	manager.Register(cs)
	markAPILast(cs, entry)

	payload := append(append(taposCompleteTaposFragment(5, 1), taposCompleteActionFragment(5)...), taposCompleteDataSigFragment(5)...)
	body := uplinkBody(t, payload, "dev-1", "")
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ingress.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != `{"transaction_id":"abc123"}` {
		t.Fatalf("expected chain API body surfaced, got %q", rr.Body.String())
	}
}

func TestHealthzOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.top.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestDeviceStatesIntrospection(t *testing.T) {
	s, _ := newTestServer(t)
	_ = s.store.Get("dev-1")
	req := httptest.NewRequest(http.MethodGet, "/api/device_states", nil)
	rr := httptest.NewRecorder()
	s.top.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := out["dev-1"]; !ok {
		t.Fatalf("expected dev-1 present: %v", out)
	}
}

func seedTaposInfo(cs *tapos.ChainState) {
	cs.Seed(tapos.Info{AcqEpoch: time.Now(), RefBlockNum: 200, RefBlockPrefix: 300}, nil)
}

func markAPILast(cs *tapos.ChainState, entry *tapos.APIEntry) {
	cs.Seed(tapos.Info{AcqEpoch: time.Now(), RefBlockNum: 1, RefBlockPrefix: 2}, entry)
}

func taposCompleteTaposFragment(trxID, chainID byte) []byte {
	buf := make([]byte, 1+1+1+10)
	buf[0] = elpp.ChannelTapos
	buf[1] = trxID & 0x7
	buf[2] = chainID & 0x7
	binary.LittleEndian.PutUint32(buf[3:7], 100)
	binary.LittleEndian.PutUint16(buf[7:9], 200)
	binary.LittleEndian.PutUint32(buf[9:13], 300)
	return buf
}

func taposCompleteActionFragment(trxID byte) []byte {
	buf := make([]byte, 1+1+32)
	buf[0] = elpp.ChannelAction
	buf[1] = trxID & 0x7
	for i := 2; i < 34; i++ {
		buf[i] = byte(i)
	}
	return buf
}

func taposCompleteDataSigFragment(trxID byte) []byte {
	data := []byte{1, 2, 3}
	w := []byte{elpp.ChannelSerializedAction, trxID & 0x7, byte(len(data))}
	w = append(w, data...)

	sig := make([]byte, 1+1+65)
	sig[0] = elpp.ChannelSignature
	sig[1] = trxID & 0x7
	sig[2] = 1
	for i := 0; i < 64; i++ {
		sig[3+i] = byte(i)
	}
	return append(w, sig...)
}
