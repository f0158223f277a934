package roles

import (
	"sort"
	"strings"
)

// Well-known dashboard roles.
const (
	Admin    = "admin"
	Host     = "host"
	Merchant = "merchant"
	Fetchman = "fetchman"
	Customer = "customer"
)

// Set is an immutable set of role strings. The zero value is empty.
type Set struct {
	members map[string]struct{}
}

// NewSet builds a set, trimming whitespace and dropping empty entries.
func NewSet(roles ...string) Set {
	if len(roles) == 0 {
		return Set{}
	}
	members := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		members[r] = struct{}{}
	}
	return Set{members: members}
}

func (s Set) Has(role string) bool {
	_, ok := s.members[role]
	return ok
}

func (s Set) Len() int {
	return len(s.members)
}

func (s Set) Empty() bool {
	return len(s.members) == 0
}

// Slice returns the members in lexical order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s.members))
	for r := range s.members {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// IntersectsAny reports whether s holds at least one of roles.
func (s Set) IntersectsAny(roles []string) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for r := range s.members {
		if !other.Has(r) {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	return "[" + strings.Join(s.Slice(), ",") + "]"
}

// Priority is a total order over roles, highest first.
type Priority []string

// DefaultPriority is admin > host > merchant > fetchman > customer.
var DefaultPriority = Priority{Admin, Host, Merchant, Fetchman, Customer}

// Highest returns the first role in p that s holds.
func (p Priority) Highest(s Set) (string, bool) {
	for _, r := range p {
		if s.Has(r) {
			return r, true
		}
	}
	return "", false
}
