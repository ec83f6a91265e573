package provider

import "testing"

func TestTranslate_ExactTable(t *testing.T) {
	tr := NewTranslator(nil)

	code, err := tr.Translate("MTN", "MTN-1GB-30D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "mtn-1gb-monthly" {
		t.Errorf("code = %q, want mtn-1gb-monthly", code)
	}
}

func TestTranslate_PatternFallback(t *testing.T) {
	tr := NewTranslator(nil)

	cases := []struct {
		network string
		planID  string
		want    string
	}{
		{"MTN", "MTN 1.5GB 30 days plan", "mtn-1.5gb-30days"},
		{"GLO", "GLO-2GB-WEEKLY", "glo-2gb-weekly"},
		{"AIRTEL", "500MB Daily", "airtel-500mb-daily"},
		{"9MOBILE", "9mobile 1GB", "9mobile-1gb"},
	}

	for _, tc := range cases {
		got, err := tr.Translate(tc.network, tc.planID)
		if err != nil {
			t.Errorf("Translate(%q, %q) error: %v", tc.network, tc.planID, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Translate(%q, %q) = %q, want %q", tc.network, tc.planID, got, tc.want)
		}
	}
}

func TestTranslate_Untranslatable(t *testing.T) {
	tr := NewTranslator(nil)

	if _, err := tr.Translate("MTN", "OPAQUE-CODE-42"); err == nil {
		t.Fatal("expected error for plan with no volume token")
	}
}

func TestPeyflexDataNetwork(t *testing.T) {
	cases := map[string]string{
		"MTN":     "mtn_gifting_data",
		"mtn":     "mtn_gifting_data",
		"AIRTEL":  "airtel_data",
		"9MOBILE": "9mobile_data",
		"UNKNOWN": "unknown",
	}
	for in, want := range cases {
		if got := PeyflexDataNetwork(in); got != want {
			t.Errorf("PeyflexDataNetwork(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimilarPlanNames(t *testing.T) {
	cases := []struct {
		requested, delivered string
		want                 bool
	}{
		{"MTN 1GB Monthly", "1GB Data Bundle 30days", true},
		{"MTN 1GB 30 days", "Airtel 2GB Weekly", false},
		{"500MB Weekly plan", "N500 500mb bundle", true},
		{"Opaque plan", "Another opaque plan", false},
	}

	for _, tc := range cases {
		if got := SimilarPlanNames(tc.requested, tc.delivered); got != tc.want {
			t.Errorf("SimilarPlanNames(%q, %q) = %v, want %v", tc.requested, tc.delivered, got, tc.want)
		}
	}
}
