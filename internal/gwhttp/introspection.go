package gwhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"elpp-gateway/internal/tapos"
)

// handleDeviceStates reports the number of in-flight records held per device
// key, for operational visibility into the reassembler's device table.
func (s *Server) handleDeviceStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot())
}

// taposChainView is the introspection shape for one chain's manager state.
type taposChainView struct {
	ChainID        byte           `json:"chain_id"`
	RefBlockNum    uint16         `json:"ref_block_num"`
	RefBlockPrefix uint32         `json:"ref_block_prefix"`
	Fresh          bool           `json:"fresh"`
	DispatchDepth  int            `json:"dispatch_depth"`
	Pool           []apiEntryView `json:"pool"`
}

type apiEntryView struct {
	Host         string `json:"host"`
	Errors       int    `json:"errors"`
	CheckCount   int    `json:"check_count"`
	UseCount     int    `json:"use_count"`
	Quarantined  bool   `json:"quarantined"`
	VersionFound string `json:"version_found"`
}

// handleTaposManagerState reports each registered chain's current TAPOS
// freshness, dispatch queue depth, and API-pool quarantine state.
func (s *Server) handleTaposManagerState(w http.ResponseWriter, r *http.Request) {
	out := []taposChainView{}
	for chainID := byte(0); chainID < 8; chainID++ {
		cs := s.manager.Chain(chainID)
		if cs == nil {
			continue
		}
		info := cs.Tapos()
		view := taposChainView{
			ChainID:        chainID,
			RefBlockNum:    info.RefBlockNum,
			RefBlockPrefix: info.RefBlockPrefix,
			Fresh:          info.Fresh(),
			DispatchDepth:  cs.Dispatch.Len(),
		}
		for _, e := range cs.Snapshot() {
			view.Pool = append(view.Pool, apiEntryView{
				Host:         e.Host,
				Errors:       e.Errors,
				CheckCount:   e.CheckCount,
				UseCount:     e.UseCount,
				Quarantined:  e.Errors >= tapos.ErrorsMax,
				VersionFound: e.VersionFound,
			})
		}
		out = append(out, view)
	}
	writeJSON(w, out)
}

// ObserveChain implements tapos.Observer, mirroring each chain's freshness
// and quarantine state into the Prometheus gauges exposed at /metrics.
func (s *Server) ObserveChain(chainID byte, refBlockNum uint16, quarantinedCount int) {
	label := strconv.Itoa(int(chainID))
	s.metrics.taposFreshness.WithLabelValues(label).Set(float64(refBlockNum))
	s.metrics.quarantinedHosts.WithLabelValues(label).Set(float64(quarantinedCount))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
