package addrindex

import (
	sdkscript "github.com/bitcoin-sv/go-sdk/script"
)

// AddressResolver maps a locking script to the address string that owns it
// (§4.4 "Script→address: an injected collaborator"). Unrecognized scripts
// are skipped silently by the caller, not by the resolver.
type AddressResolver interface {
	ResolveAddress(lockingScript []byte) (string, bool)
}

// SDKAddressResolver wraps bitcoin-sv/go-sdk's script utilities, the
// teacher's own dependency for this exact family of operation (its go.mod
// carries go-sdk, though no teacher call site exercises script→address
// conversion directly; this wraps its minimal public surface).
type SDKAddressResolver struct {
	Mainnet bool
}

// ResolveAddress derives a P2PKH address string from lockingScript, the only
// script template the indexer tracks balances for. Any other template (or a
// malformed script) is reported as unrecognized.
func (r SDKAddressResolver) ResolveAddress(lockingScript []byte) (string, bool) {
	s := sdkscript.Script(lockingScript)

	pkh, err := s.PublicKeyHash()
	if err != nil || len(pkh) == 0 {
		return "", false
	}

	addr, err := sdkscript.NewAddressFromPublicKeyHash(pkh, r.Mainnet)
	if err != nil || addr == nil {
		return "", false
	}

	return addr.AddressString, true
}
