package models

import "testing"

func TestUsageDerivation(t *testing.T) {
	end := int64(150)
	u := MeterUsage{MeterStart: 100, MeterEnd: &end}
	got, ok := u.Usage()
	if !ok || got != 50 {
		t.Fatalf("expected usage 50 got %d ok=%v", got, ok)
	}
	u2 := MeterUsage{MeterStart: 100}
	if _, ok := u2.Usage(); ok {
		t.Fatalf("usage must be undefined without an end reading")
	}
}

func TestUsageNegativeReported(t *testing.T) {
	end := int64(40)
	u := MeterUsage{MeterStart: 100, MeterEnd: &end}
	got, ok := u.Usage()
	if !ok || got != -60 {
		t.Fatalf("negative usage must be reported as-is, got %d ok=%v", got, ok)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to UsageStatus
		ok       bool
	}{
		{UsagePending, UsageUnconfirmed, true},
		{UsageUnconfirmed, UsageConfirmed, true},
		{UsagePending, UsageConfirmed, false},
		{UsageConfirmed, UsageUnconfirmed, false},
		{UsageConfirmed, UsagePending, false},
		{UsageConfirmed, UsageConfirmed, true},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v got %v", c.from, c.to, c.ok, got)
		}
	}
	u := MeterUsage{Status: UsageConfirmed}
	if err := u.Advance(UsageUnconfirmed); err == nil {
		t.Fatalf("confirmed rows must be terminal")
	}
	if u.Status.Editable() {
		t.Fatalf("confirmed rows must not be editable")
	}
}

func TestValidMonth(t *testing.T) {
	good := []string{"2024-12", "2025-01"}
	bad := []string{"", "2024-13", "2024-00", "202412", "24-12", "2024/12", "2024-1x"}
	for _, m := range good {
		if !ValidMonth(m) {
			t.Errorf("expected %q valid", m)
		}
	}
	for _, m := range bad {
		if ValidMonth(m) {
			t.Errorf("expected %q invalid", m)
		}
	}
}
