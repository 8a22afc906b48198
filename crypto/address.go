package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"

	"energymarket/core/types"
)

// AddressPrefix is the human-readable part of derived addresses.
const AddressPrefix = "energy"

// ModuleScheme marks a principal that should be derived from a module name,
// e.g. "module:escrow".
const ModuleScheme = "module:"

// Address represents a 20-byte account address with a specific prefix.
type Address struct {
	prefix string
	bytes  []byte
}

func NewAddress(prefix string, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// ModuleAddress derives the deterministic custodial address of a module.
func ModuleAddress(module string) Address {
	name := strings.ToLower(strings.TrimSpace(module))
	digest := crypto.Keccak256([]byte("module/" + name))
	return Address{prefix: AddressPrefix, bytes: digest[:20]}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() string {
	return a.prefix
}

// Principal returns the address as an account identity.
func (a Address) Principal() types.Principal {
	return types.Principal(a.String())
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(prefix, conv)
}

// ResolvePrincipal turns a configured identity into a principal. Values of
// the form "module:<name>" resolve to the module address; bech32 values must
// decode; anything else is used verbatim.
func ResolvePrincipal(raw string) (types.Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty principal")
	}
	if name, ok := strings.CutPrefix(trimmed, ModuleScheme); ok {
		if strings.TrimSpace(name) == "" {
			return "", fmt.Errorf("module principal %q has no module name", raw)
		}
		return ModuleAddress(name).Principal(), nil
	}
	if strings.HasPrefix(strings.ToLower(trimmed), AddressPrefix+"1") {
		if _, err := DecodeAddress(trimmed); err != nil {
			return "", err
		}
	}
	return types.Principal(trimmed), nil
}
