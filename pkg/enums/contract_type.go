package enums

import "fmt"

// ContractType is derived once at contract creation and never changes.
type ContractType string

const (
	ContractTypeDeposit     ContractType = "deposit"
	ContractTypeFullPayment ContractType = "full_payment"
)

var validContractTypes = []ContractType{
	ContractTypeDeposit,
	ContractTypeFullPayment,
}

// String implements fmt.Stringer.
func (c ContractType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ContractType.
func (c ContractType) IsValid() bool {
	for _, candidate := range validContractTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseContractType converts raw input into a ContractType.
func ParseContractType(value string) (ContractType, error) {
	for _, candidate := range validContractTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contract type %q", value)
}
