package tapos

import "testing"

func TestSelectSkipsQuarantinedEntry(t *testing.T) {
	cs := NewChainState(1, "", []*APIEntry{
		{Host: "good.example", Method: "http://"},
		{Host: "bad.example", Method: "http://", Errors: ErrorsMax},
	})
	for i := 0; i < 200; i++ {
		e, err := cs.Select()
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if e.Host == "bad.example" {
			t.Fatalf("quarantined entry was selected")
		}
	}
}

func TestQuarantineDecaysAfterCheckMax(t *testing.T) {
	cs := NewChainState(1, "", []*APIEntry{
		{Host: "only.example", Method: "http://", Errors: ErrorsMax},
	})
	for i := 0; i < CheckMax-1; i++ {
		if _, err := cs.Select(); err != ErrAPIPoolExhausted {
			t.Fatalf("iteration %d: expected exhausted, got %v", i, err)
		}
	}
	e, err := cs.Select()
	if err != nil {
		t.Fatalf("expected entry to decay into eligibility, got %v", err)
	}
	if e.Errors != ErrorsMax-1 {
		t.Fatalf("expected errors decremented to %d, got %d", ErrorsMax-1, e.Errors)
	}
}

func TestSelectFairnessAcrossPool(t *testing.T) {
	entries := []*APIEntry{
		{Host: "a", Method: "http://"},
		{Host: "b", Method: "http://"},
		{Host: "c", Method: "http://"},
	}
	cs := NewChainState(1, "", entries)
	counts := map[string]int{}
	const trials = 3000
	for i := 0; i < trials; i++ {
		e, err := cs.Select()
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		counts[e.Host]++
	}
	want := float64(trials) / float64(len(entries))
	for host, c := range counts {
		frac := float64(c) / want
		if frac < 0.8 || frac > 1.2 {
			t.Fatalf("host %s selected %d times, want near %v (fraction %v)", host, c, want, frac)
		}
	}
}

func TestAPIPoolExhaustedWhenAllQuarantined(t *testing.T) {
	cs := NewChainState(1, "", []*APIEntry{
		{Host: "a", Method: "http://", Errors: ErrorsMax, CheckCount: 3},
		{Host: "b", Method: "http://", Errors: ErrorsMax, CheckCount: 7},
	})
	_, err := cs.Select()
	if err != ErrAPIPoolExhausted {
		t.Fatalf("expected ErrAPIPoolExhausted, got %v", err)
	}
}
