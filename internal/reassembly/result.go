package reassembly

// ResultKind discriminates the closed set of outcomes Decode can produce.
// Modeling it as a closed sum keeps callers from having to guess which
// fields of Result are meaningful for a given outcome.
type ResultKind int

const (
	Incomplete ResultKind = iota
	Complete
	TaposRequest
	Error
)

// Transaction is the blockchain-ready payload assembled once all four
// fragments of a trx are present.
type Transaction struct {
	Signatures             []string `json:"signatures"`
	Compression            bool     `json:"compression"`
	PackedContextFreeData  string   `json:"packed_context_free_data"`
	PackedTrx              string   `json:"packed_trx"`
}

// TaposReq is the device's request for fresh TAPOS metadata.
type TaposReq struct {
	ChainID byte
	ReqID   byte
}

// Result is the closed-sum outcome of one Decode call.
type Result struct {
	Kind     ResultKind
	Chain    byte
	Trx      *Transaction
	TaposReq *TaposReq
	Status   string // human-readable "has X, needs Y" line, Incomplete only
	Err      error  // set only when Kind == Error
}
