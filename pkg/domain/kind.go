package domain

import dErrors "roadlog/pkg/domain-errors"

// Kind classifies a business record. Every record type shares the same
// storage, index and tombstone lifecycle; the kind only namespaces keys and
// selects which service instance handles a request.
type Kind string

// Supported record kinds.
const (
	KindTrip    Kind = "trip"
	KindMileage Kind = "mileage"
	KindExpense Kind = "expense"
)

// validKinds is the single source of truth for supported record kinds.
var validKinds = map[Kind]bool{
	KindTrip:    true,
	KindMileage: true,
	KindExpense: true,
}

// Kinds lists the supported record kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindTrip, KindMileage, KindExpense}
}

// ParseKind constructs a Kind from external input.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record kind cannot be empty")
	}
	k := Kind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported record kind")
	}
	return k, nil
}

// IsValid checks if the kind is one of the supported enum values.
func (k Kind) IsValid() bool {
	return validKinds[k]
}
