package reassembly

import "time"

// record is one in-flight transaction for a single device, keyed by its
// 3-bit transaction id. Fields are set exactly once each (first-write-wins);
// a record is complete once all four are set.
type record struct {
	chain     byte
	chainSet  bool
	tapos     []byte // 13 bytes once set: 10 wire bytes + 3 trailing zero bytes
	action    []byte // 34 bytes once set
	data      []byte // raw serialized-action payload, unprefixed
	signature string // rendered SIG_K1_... string
	lastEpoch time.Time
}

func newRecord() *record {
	return &record{lastEpoch: time.Now()}
}

func (r *record) complete() bool {
	return r.tapos != nil && r.action != nil && r.data != nil && r.signature != ""
}

func (r *record) touch() {
	r.lastEpoch = time.Now()
}

// statusLine renders the human-readable "has X, needs Y" summary used in
// the 200-pending ingress response.
func (r *record) statusLine() string {
	parts := []string{
		fieldStatus("tapos", r.tapos != nil),
		fieldStatus("action", r.action != nil),
		fieldStatus("data", r.data != nil),
		fieldStatus("signature", r.signature != ""),
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func fieldStatus(name string, present bool) string {
	if present {
		return "has " + name
	}
	return "needs " + name
}
