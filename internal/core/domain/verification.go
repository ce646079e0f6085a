package domain

import (
	"encoding/json"
)

// AspectStatus of a single proof aspect returned by the proof checker
type AspectStatus string

// Aspect statuses
const (
	AspectValid   AspectStatus = "VALID"
	AspectInvalid AspectStatus = "INVALID"
	AspectSkipped AspectStatus = "SKIPPED"
	AspectError   AspectStatus = "ERROR"
)

// VerificationFragment is one aspect of a remote verification result
type VerificationFragment struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Status AspectStatus    `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

// VerificationOutcome is the classified result of a verification attempt
type VerificationOutcome struct {
	Status    VerificationStatus
	Reason    string
	Fragments []VerificationFragment
}

// ClassifyFragments returns valid only when no aspect is invalid and at least threshold aspects
// were evaluated. Fewer evaluated aspects means the document is likely not a credential of the
// expected kind, which is an error rather than invalid.
func ClassifyFragments(fragments []VerificationFragment, threshold int) (VerificationStatus, string) {
	evaluated, invalid := 0, 0
	var firstInvalid string
	for _, f := range fragments {
		switch f.Status {
		case AspectSkipped:
			continue
		case AspectInvalid, AspectError:
			invalid++
			if firstInvalid == "" {
				firstInvalid = f.Name
			}
		}
		evaluated++
	}
	switch {
	case invalid > 0:
		return VerificationInvalid, "invalid aspect: " + firstInvalid
	case evaluated < threshold:
		return VerificationError, "not enough verified aspects"
	default:
		return VerificationValid, ""
	}
}
