package model

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in       string
		wantDays int
		wantErr  bool
	}{
		{"today", 1, false},
		{"7d", 7, false},
		{"30d", 30, false},
		{"3m", 90, false},
		{"6m", 180, false},
		{"1y", 365, false},
		{"2y", 0, true},
		{"max", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePeriod(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Errorf("err = %v, want InvalidParameter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Days() != tt.wantDays {
				t.Errorf("Days() = %d, want %d", p.Days(), tt.wantDays)
			}
		})
	}
}

func TestParseActivityType(t *testing.T) {
	if _, err := ParseActivityType("minutesVeryActive"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseActivityType("heart"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("err = %v, want InvalidParameter", err)
	}
}

func TestValidateDate(t *testing.T) {
	for _, ok := range []string{"today", "2024-02-29"} {
		if err := ValidateDate(ok); err != nil {
			t.Errorf("ValidateDate(%q) = %v, want nil", ok, err)
		}
	}
	for _, ng := range []string{"yesterday", "2024/01/01", "2024-13-01", "../devices"} {
		if err := ValidateDate(ng); err == nil {
			t.Errorf("ValidateDate(%q) = nil, want error", ng)
		}
	}
}

func TestTokenRecord_IsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &TokenRecord{AccessToken: "a", ExpiresAt: now}

	if rec.IsExpired(now) {
		t.Error("token must not be expired at exactly expiresAt")
	}
	if !rec.IsExpired(now.Add(time.Second)) {
		t.Error("token must be expired after expiresAt")
	}
}

func TestTokenRecord_Validate(t *testing.T) {
	if err := (&TokenRecord{AccessToken: "a"}).Validate(); err == nil {
		t.Error("record without expiry must be invalid")
	}
	if err := (&TokenRecord{AccessToken: "a", ExpiresAt: time.Now()}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
