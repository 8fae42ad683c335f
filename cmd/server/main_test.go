package main

import (
	"testing"

	"pharmapos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", PharmacistPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", PharmacistPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"123456", "999999", "987654", "112233"} {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected pin %s to be rejected", pin)
		}
	}
	if err := validatePINStrength("731842"); err != nil {
		t.Fatalf("expected pin to pass, got %v", err)
	}
}
