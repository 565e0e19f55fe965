package licensing

import "sort"

// Actor is the authenticated caller as supplied by the session layer.
// IsMaster must be derived from configuration, never from client input.
type Actor struct {
	LicenseKey LicenseKey
	ActorID    string
	IsMaster   bool
	IP         string
	// ImpersonatedBy holds the master actor id when the session was minted by impersonation
	ImpersonatedBy string
}

// Scope restricts reads of product-key attributed data. The zero value
// matches nothing.
type Scope struct {
	all  bool
	keys []string
}

// MatchAll returns an unrestricted scope. Only the master tenant receives it.
func MatchAll() Scope {
	return Scope{all: true}
}

// MatchNothing returns a scope that admits no rows
func MatchNothing() Scope {
	return Scope{}
}

// MatchKeys returns a scope limited to the given key values. Empty and
// duplicate values are dropped; an empty result matches nothing.
func MatchKeys(keys ...string) Scope {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return Scope{keys: out}
}

// IsUnrestricted reports whether every row matches
func (s Scope) IsUnrestricted() bool {
	return s.all
}

// IsEmpty reports whether no row can match
func (s Scope) IsEmpty() bool {
	return !s.all && len(s.keys) == 0
}

// Keys returns the admitted key values; nil for an unrestricted scope
func (s Scope) Keys() []string {
	if s.all {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Allows reports whether a row attributed to key is visible
func (s Scope) Allows(key string) bool {
	if s.all {
		return true
	}
	i := sort.SearchStrings(s.keys, key)
	return i < len(s.keys) && s.keys[i] == key
}
