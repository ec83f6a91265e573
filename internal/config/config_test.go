package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DepositFee != 30.0 {
		t.Errorf("DepositFee = %v, want 30", cfg.DepositFee)
	}
	if cfg.EmergencyMultiplier != 2.0 {
		t.Errorf("EmergencyMultiplier = %v, want 2", cfg.EmergencyMultiplier)
	}
	if cfg.EmergencyThresholdFactor != 0.8 {
		t.Errorf("EmergencyThresholdFactor = %v, want 0.8", cfg.EmergencyThresholdFactor)
	}
	if cfg.PlanAmountTolerance != 50.0 {
		t.Errorf("PlanAmountTolerance = %v, want 50", cfg.PlanAmountTolerance)
	}
	if cfg.DuplicateWindow != 5*time.Minute {
		t.Errorf("DuplicateWindow = %v, want 5m", cfg.DuplicateWindow)
	}
	if cfg.AirtimeMinAmount != 100 || cfg.AirtimeMaxAmount != 5000 {
		t.Errorf("airtime bounds = [%v, %v], want [100, 5000]", cfg.AirtimeMinAmount, cfg.AirtimeMaxAmount)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VAS_DEPOSIT_FEE", "0")
	t.Setenv("DUPLICATE_WINDOW", "90s")
	t.Setenv("PLAN_AMOUNT_TOLERANCE", "not-a-number")

	cfg := Load()

	if cfg.DepositFee != 0 {
		t.Errorf("DepositFee = %v, want 0", cfg.DepositFee)
	}
	if cfg.DuplicateWindow != 90*time.Second {
		t.Errorf("DuplicateWindow = %v, want 90s", cfg.DuplicateWindow)
	}
	if cfg.PlanAmountTolerance != 50.0 {
		t.Errorf("malformed env should fall back to default, got %v", cfg.PlanAmountTolerance)
	}
}
