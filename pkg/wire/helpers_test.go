package wire_test

import (
	"testing"

	"github.com/libsv/go-bt/v2/chainhash"
)

// chainhashFromByte builds a deterministic, non-zero test hash by filling
// every byte with b.
func chainhashFromByte(t *testing.T, b byte) *chainhash.Hash {
	t.Helper()
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}
	return &h
}
