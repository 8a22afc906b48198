package types

import "strings"

// Principal is an opaque account identity used for every ownership and
// authorisation check performed by the native modules.
type Principal string

// NullPrincipal is the burn address. It can never hold an authority role.
const NullPrincipal Principal = "SP000000000000000000002Q6VF78"

// ParsePrincipal trims the supplied identity and reports whether it is usable
// as an account.
func ParsePrincipal(raw string) (Principal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	return Principal(trimmed), true
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return p == "" }

// IsNull reports whether the principal is the burn address.
func (p Principal) IsNull() bool { return p == NullPrincipal }

func (p Principal) String() string { return string(p) }
