package domain

import (
	"testing"
	"time"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount float64
		cur    Currency
		want   string
	}{
		{1250, CurrencyMXN, "$1,250.00 MXN"},
		{200, CurrencyUSD, "$200.00 USD"},
		{0.5, CurrencyNone, "$0.50"},
		{-75.25, CurrencyMXN, "-$75.25 MXN"},
		{1234567.891, CurrencyUSD, "$1,234,567.89 USD"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.amount, tt.cur); got != tt.want {
			t.Errorf("FormatMoney(%v, %q) = %q, want %q", tt.amount, tt.cur, got, tt.want)
		}
	}
}

func TestBalanceRemaining(t *testing.T) {
	b := Balance{TotalCharged: 1000, TotalPaid: 350}
	if got := b.Remaining(); got != 650 {
		t.Fatalf("expected 650, got %v", got)
	}
}

func TestParseCurrency(t *testing.T) {
	if ParseCurrency(" usd ") != CurrencyUSD {
		t.Fatal("expected USD")
	}
	if ParseCurrency("mxn") != CurrencyMXN {
		t.Fatal("expected MXN")
	}
	if ParseCurrency("eur") != CurrencyNone {
		t.Fatal("expected none for unsupported code")
	}
}

func TestUserProfileLocationFallback(t *testing.T) {
	fallback := time.UTC
	var nilProfile *UserProfile
	if nilProfile.Location(fallback) != fallback {
		t.Fatal("nil profile should use fallback")
	}
	p := &UserProfile{Timezone: "Not/AZone"}
	if p.Location(fallback) != fallback {
		t.Fatal("invalid timezone should use fallback")
	}
	p.Timezone = "America/Mexico_City"
	if got := p.Location(fallback).String(); got != "America/Mexico_City" {
		t.Fatalf("expected America/Mexico_City, got %s", got)
	}
}

func TestReminderTimeFor(t *testing.T) {
	start := time.Date(2026, 1, 25, 18, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 24, 18, 0, 0, 0, time.UTC)
	if got := ReminderTimeFor(start); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPhoneKey(t *testing.T) {
	for _, in := range []string{"whatsapp:+5215512345678", "+52 55 1234 5678", "5512345678", "(55) 1234-5678"} {
		if got := PhoneKey(in); got != "5512345678" {
			t.Errorf("PhoneKey(%q) = %q", in, got)
		}
	}
	if PhoneKey("") != "" {
		t.Error("empty phone should have empty key")
	}
}
