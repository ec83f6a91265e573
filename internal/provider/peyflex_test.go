package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestPeyflex(baseURL string) *Peyflex {
	return NewPeyflex(PeyflexConfig{
		APIToken: "test-token",
		BaseURL:  baseURL,
	}, nil, zap.NewNop())
}

func TestPeyflex_AirtimeSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/airtime/topup/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "success",
			"reference": "PFX-1",
			"message":   "Airtime delivered",
			"amount":    500,
		})
	}))
	defer srv.Close()

	p := newTestPeyflex(srv.URL)
	result, err := p.Purchase(context.Background(), Request{
		Kind:        KindAirtime,
		Network:     "MTN",
		Amount:      500,
		PhoneNumber: "08012345678",
		Reference:   "REF-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Token test-token" {
		t.Errorf("auth header = %q, want Token scheme", gotAuth)
	}
	if gotPayload["network"] != "mtn" {
		t.Errorf("network = %v, want lowercase mtn", gotPayload["network"])
	}
	if gotPayload["mobile_number"] != "08012345678" {
		t.Errorf("mobile_number = %v", gotPayload["mobile_number"])
	}
	if result.ProviderRef != "PFX-1" || result.VendAmount != 500 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestPeyflex_DataTranslatesPlanCode(t *testing.T) {
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/data/purchase/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "success",
			"plan_name": "MTN 1GB 30days",
			"amount":    "300",
		})
	}))
	defer srv.Close()

	p := newTestPeyflex(srv.URL)
	result, err := p.Purchase(context.Background(), Request{
		Kind:        KindData,
		Network:     "MTN",
		Amount:      300,
		PlanID:      "MTN-1GB-30D",
		PhoneNumber: "08012345678",
		Reference:   "REF-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPayload["plan_code"] != "mtn-1gb-monthly" {
		t.Errorf("plan_code = %v, want mtn-1gb-monthly", gotPayload["plan_code"])
	}
	if result.Description != "MTN 1GB 30days" {
		t.Errorf("description = %q", result.Description)
	}
	if result.VendAmount != 300 {
		t.Errorf("vend amount = %v, want 300 parsed from string", result.VendAmount)
	}
}

func TestPeyflex_UntranslatablePlanSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestPeyflex(srv.URL)
	_, err := p.Purchase(context.Background(), Request{
		Kind:        KindData,
		Network:     "MTN",
		PlanID:      "OPAQUE-42",
		PhoneNumber: "08012345678",
		Reference:   "REF-3",
	})
	if err == nil {
		t.Fatal("expected error for untranslatable plan")
	}
	if called {
		t.Error("provider should not be called when translation fails")
	}

	var provErr *Error
	if !errors.As(err, &provErr) || provErr.Code != "NO_PLAN" {
		t.Errorf("expected NO_PLAN provider error, got %v", err)
	}
}

func TestPeyflex_ErrorTranslation(t *testing.T) {
	cases := []struct {
		status   int
		wantCode string
	}{
		{http.StatusBadRequest, "HTTP_400"},
		{http.StatusForbidden, "HTTP_403"},
		{http.StatusNotFound, "HTTP_404"},
		{http.StatusInternalServerError, "HTTP_500"},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			json.NewEncoder(w).Encode(map[string]interface{}{"message": "upstream says no"})
		}))

		p := newTestPeyflex(srv.URL)
		_, err := p.Purchase(context.Background(), Request{
			Kind:        KindAirtime,
			Network:     "MTN",
			Amount:      100,
			PhoneNumber: "08012345678",
			Reference:   "REF-E",
		})
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		var provErr *Error
		if !errors.As(err, &provErr) {
			t.Errorf("status %d: not a provider error: %v", tc.status, err)
			continue
		}
		if provErr.Code != tc.wantCode {
			t.Errorf("status %d: code = %q, want %q", tc.status, provErr.Code, tc.wantCode)
		}
	}
}
