package roles

import "testing"

func TestNewSetNormalizes(t *testing.T) {
	s := NewSet(" host ", "", "host", "customer")
	if s.Len() != 2 || !s.Has(Host) || !s.Has(Customer) {
		t.Fatalf("unexpected set %v", s)
	}
	if got := s.String(); got != "[customer,host]" {
		t.Fatalf("unexpected string %q", got)
	}
	if !NewSet().Empty() || !(Set{}).Empty() {
		t.Fatal("expected empty sets")
	}
}

func TestPriorityHighest(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
		ok    bool
	}{
		{name: "single", roles: []string{Host}, want: Host, ok: true},
		{name: "merchant over customer", roles: []string{Customer, Merchant}, want: Merchant, ok: true},
		{name: "admin wins", roles: []string{Fetchman, Admin, Host}, want: Admin, ok: true},
		{name: "unknown only", roles: []string{"auditor"}, ok: false},
		{name: "empty", roles: nil, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DefaultPriority.Highest(NewSet(tc.roles...))
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Highest(%v) = %q, %v; want %q, %v", tc.roles, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestSetIntersectsAndEqual(t *testing.T) {
	s := NewSet(Merchant, Customer)
	if !s.IntersectsAny([]string{Admin, Customer}) {
		t.Fatal("expected intersection")
	}
	if s.IntersectsAny([]string{Admin, Host}) || s.IntersectsAny(nil) {
		t.Fatal("unexpected intersection")
	}
	if !s.Equal(NewSet(Customer, Merchant)) || s.Equal(NewSet(Customer)) {
		t.Fatal("unexpected equality result")
	}
}
