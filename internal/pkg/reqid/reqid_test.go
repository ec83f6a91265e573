package reqid

import (
	"strings"
	"testing"
)

func TestNew_ContainsTypeAndUser(t *testing.T) {
	ref := New(42, "airtime")
	if !strings.HasPrefix(ref, "VASPAY_AIRTIME_42_") {
		t.Fatalf("unexpected reference format: %s", ref)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := New(1, "DATA")
		if seen[ref] {
			t.Fatalf("duplicate reference generated: %s", ref)
		}
		seen[ref] = true
	}
}

func TestParseAccountReference(t *testing.T) {
	cases := []struct {
		ref    string
		wantID int64
		wantOK bool
	}{
		{"VASPAY123", 123, true},
		{"vaspay-123", 123, true},
		{"VASPAY_00042", 42, true},
		{"VASPAY 7", 7, true},
		{"OTHER123", 0, false},
		{"VASPAY", 0, false},
		{"VASPAYabc", 0, false},
	}

	for _, tc := range cases {
		id, ok := ParseAccountReference(tc.ref)
		if ok != tc.wantOK {
			t.Errorf("ParseAccountReference(%q) ok = %v, want %v", tc.ref, ok, tc.wantOK)
			continue
		}
		if ok && id != tc.wantID {
			t.Errorf("ParseAccountReference(%q) id = %d, want %d", tc.ref, id, tc.wantID)
		}
	}
}

func TestAccountReferenceRoundTrip(t *testing.T) {
	id, ok := ParseAccountReference(AccountReference(981))
	if !ok || id != 981 {
		t.Fatalf("round trip failed: id=%d ok=%v", id, ok)
	}
}
