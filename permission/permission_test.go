package permission

import (
	"testing"
)

func TestMaskContains(t *testing.T) {
	cases := []struct {
		name     string
		have     Mask
		required Mask
		want     bool
	}{
		{"exact", 0b0110, 0b0110, true},
		{"superset", 0b1111, 0b0101, true},
		{"missing one bit", 0b0100, 0b0110, false},
		{"nothing required", 0b0000, 0b0000, true},
		{"disjoint", 0b1000, 0b0001, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.have.Contains(tc.required); got != tc.want {
				t.Fatalf("Contains(%s, %s) = %v, want %v", tc.have, tc.required, got, tc.want)
			}
		})
	}
}

func TestMaskSetClearOutOfRange(t *testing.T) {
	var m Mask
	m = m.Set(-1).Set(64).Set(3)
	if m != 1<<3 {
		t.Fatalf("expected only bit 3 set, got %s", m)
	}
	if m.Clear(3) != 0 {
		t.Fatal("expected clear to unset bit 3")
	}
	if m.Has(64) {
		t.Fatal("out-of-range bit must report false")
	}
}

func TestMaskCodec(t *testing.T) {
	m := Mask(0xdeadbeef01)
	got, err := DecodeMask(EncodeMask(m))
	if err != nil {
		t.Fatalf("DecodeMask: %v", err)
	}
	if got != m {
		t.Fatalf("expected %s, got %s", m, got)
	}
	if _, err := DecodeMask([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short mask")
	}
}

func TestRegistryAssignsSequentialBits(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"chat.read", "chat.write", "group.admin"} {
		bit, err := r.Register(name)
		if err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
		if bit != i {
			t.Fatalf("Register(%q) bit = %d, want %d", name, bit, i)
		}
	}

	if _, err := r.Register("chat.read"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	m, err := r.Mask("chat.read", "group.admin")
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if m != 0b101 {
		t.Fatalf("expected mask 0b101, got %s", m)
	}

	names := r.Names(m)
	if len(names) != 2 || names[0] != "chat.read" || names[1] != "group.admin" {
		t.Fatalf("unexpected names %v", names)
	}

	r.Freeze()
	if _, err := r.Register("late"); err == nil {
		t.Fatal("expected frozen registry to reject registration")
	}
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxBits; i++ {
		if _, err := r.Register(string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); err == nil {
		t.Fatal("expected 65th permission to fail")
	}
}

func TestRoleManager(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"chat.read", "chat.write", "admin.panel"} {
		if _, err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	rm := NewRoleManager(r)

	if err := rm.RegisterRole("member", []string{"chat.read", "chat.write"}); err != nil {
		t.Fatalf("RegisterRole: %v", err)
	}
	if err := rm.RegisterRole("ghost", []string{"missing"}); err == nil {
		t.Fatal("expected unknown permission to fail")
	}

	mask, ok := rm.GetMask("member")
	if !ok || mask != 0b011 {
		t.Fatalf("unexpected member mask %s ok=%v", mask, ok)
	}

	rm.Freeze()
	if err := rm.RegisterRole("late", nil); err == nil {
		t.Fatal("expected frozen role manager to reject registration")
	}
}
