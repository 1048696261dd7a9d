package dto

import (
	"time"

	"github.com/customeros/sitestack/internal/enum"
)

type DNSObservation struct {
	Hostname      string   `json:"hostname"`
	ExpectedType  string   `json:"expectedType"`
	ExpectedValue string   `json:"expectedValue"`
	ObservedCNAME string   `json:"observedCname,omitempty"`
	ObservedA     []string `json:"observedA,omitempty"`
	LookupError   string   `json:"lookupError,omitempty"`
	Matches       bool     `json:"matches"`
}

type VerificationResult struct {
	DomainID       string                   `json:"domainId"`
	Hostname       string                   `json:"hostname"`
	Attempt        int                      `json:"attempt"`
	Outcome        enum.VerificationOutcome `json:"outcome"`
	Verified       bool                     `json:"verified"`
	Configured     bool                     `json:"configured"`
	Verification   []VerificationChallenge  `json:"verification"`
	SSL            *SSLStatus               `json:"ssl"`
	Error          string                   `json:"error,omitempty"`
	ShouldRetry    bool                     `json:"shouldRetry"`
	NextRetryDelay time.Duration            `json:"nextRetryDelay"`
	Diagnostics    *DNSObservation          `json:"diagnostics,omitempty"`
}
