package enums

import "fmt"

// EvidenceKind associates an uploaded artifact with a side or a step.
type EvidenceKind string

const (
	EvidenceKindSellerSignature   EvidenceKind = "seller_signature"
	EvidenceKindBuyerSignature    EvidenceKind = "buyer_signature"
	EvidenceKindNotarizationProof EvidenceKind = "notarization_proof"
	EvidenceKindHandoverProof     EvidenceKind = "handover_proof"
)

var validEvidenceKinds = []EvidenceKind{
	EvidenceKindSellerSignature,
	EvidenceKindBuyerSignature,
	EvidenceKindNotarizationProof,
	EvidenceKindHandoverProof,
}

// String implements fmt.Stringer.
func (e EvidenceKind) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EvidenceKind.
func (e EvidenceKind) IsValid() bool {
	for _, candidate := range validEvidenceKinds {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEvidenceKind converts raw input into an EvidenceKind.
func ParseEvidenceKind(value string) (EvidenceKind, error) {
	for _, candidate := range validEvidenceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid evidence kind %q", value)
}
