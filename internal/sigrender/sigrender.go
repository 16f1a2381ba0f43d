// Package sigrender renders a raw 65-byte signature (i:1, r:32, s:32) into
// its wire string form, using a RIPEMD160-derived checksum as Antelope-family
// signature strings do.
package sigrender

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the K1 checksum scheme, not a hash choice of our own
)

const keyType = "K1"
const prefix = "SIG_K1_"

// Render returns "SIG_K1_" + base58(sig || ripemd160(sig || "K1")[:4]).
//
// This implements only the RIPEMD160-derived 4-byte checksum; it does not
// attempt any further chain-specific signature serialization beyond that.
func Render(sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("sigrender: signature must be 65 bytes, got %d", len(sig))
	}
	h := ripemd160.New()
	h.Write(sig)
	h.Write([]byte(keyType))
	checksum := h.Sum(nil)[:4]
	payload := make([]byte, 0, len(sig)+len(checksum))
	payload = append(payload, sig...)
	payload = append(payload, checksum...)
	return prefix + base58.Encode(payload), nil
}
