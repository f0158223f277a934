package redirect

import (
	"net/url"
	"strings"

	"github.com/eventdash/authsync/roles"
)

const (
	DefaultEntryRoute  = "/login"
	DefaultRootRoute   = "/"
	DefaultReturnParam = "redirect"
)

// RouteTable maps role sets to destinations through an ordered priority list.
type RouteTable struct {
	Priority    roles.Priority
	Entry       string
	Root        string
	ReturnParam string
}

// DefaultRoutes returns the table used when none is configured.
func DefaultRoutes() RouteTable {
	return RouteTable{
		Priority:    roles.DefaultPriority,
		Entry:       DefaultEntryRoute,
		Root:        DefaultRootRoute,
		ReturnParam: DefaultReturnParam,
	}
}

func (t RouteTable) withDefaults() RouteTable {
	if len(t.Priority) == 0 {
		t.Priority = roles.DefaultPriority
	}
	if t.Entry == "" {
		t.Entry = DefaultEntryRoute
	}
	if t.Root == "" {
		t.Root = DefaultRootRoute
	}
	if t.ReturnParam == "" {
		t.ReturnParam = DefaultReturnParam
	}
	return t
}

// Target returns "/"+role for the highest-priority role in set, or the root
// route when set holds no recognized role.
func (t RouteTable) Target(set roles.Set) string {
	t = t.withDefaults()
	if role, ok := t.Priority.Highest(set); ok {
		return "/" + role
	}
	return t.Root
}

// IsEntry reports whether location is the entry route.
func (t RouteTable) IsEntry(location string) bool {
	return SamePath(location, t.withDefaults().Entry)
}

// LoginTarget returns the entry route carrying location as the return
// parameter. A location already on the entry route is returned unchanged.
func (t RouteTable) LoginTarget(location string) string {
	t = t.withDefaults()
	if location == "" || SamePath(location, t.Root) {
		return t.Entry
	}
	if t.IsEntry(location) {
		return location
	}
	return t.Entry + "?" + url.Values{t.ReturnParam: {location}}.Encode()
}

// ReturnLocation extracts the preserved location from a login target.
func (t RouteTable) ReturnLocation(target string) (string, bool) {
	t = t.withDefaults()
	if !t.IsEntry(target) {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	loc := u.Query().Get(t.ReturnParam)
	// Only same-origin relative paths are returned.
	if loc == "" || !strings.HasPrefix(loc, "/") || strings.HasPrefix(loc, "//") {
		return "", false
	}
	return loc, true
}

// Path strips query and fragment from location and drops a trailing slash.
func Path(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	if location == "" {
		return "/"
	}
	if len(location) > 1 {
		location = strings.TrimRight(location, "/")
		if location == "" {
			return "/"
		}
	}
	return location
}

// SamePath compares two locations by path only.
func SamePath(a, b string) bool {
	return Path(a) == Path(b)
}
