package dto

import "github.com/customeros/sitestack/internal/enum"

type SSLStatus struct {
	State enum.SSLState `json:"state"`
}

// VerificationChallenge is an instruction the user must apply at their DNS
// provider before the hosting platform accepts the domain.
type VerificationChallenge struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// DomainStatus is the hosting platform's live view of a hostname.
type DomainStatus struct {
	Configured   bool                    `json:"configured"`
	SSL          *SSLStatus              `json:"ssl"`
	Verification []VerificationChallenge `json:"verification"`
}
