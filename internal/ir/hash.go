package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPlan = "stencil/plan/v1"
	DomainSpec = "stencil/spec/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanHash computes the content address of a plan. Two plans with equal
// regions, sync vector and color hash identically.
func PlanHash(p *Plan) (string, error) {
	v, err := toCanonicalValue(p)
	if err != nil {
		return "", fmt.Errorf("PlanHash: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("PlanHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// SpecHash computes the content address of a compiled stencil spec.
func SpecHash(s *StencilSpec) (string, error) {
	v, err := toCanonicalValue(s)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// MustPlanHash is like PlanHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPlanHash(p *Plan) string {
	h, err := PlanHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
