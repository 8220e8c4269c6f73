package domain

import (
	"strings"

	dErrors "roadlog/pkg/domain-errors"
)

// UserID is an opaque identifier supplied by the authentication collaborator.
// The core trusts it as-is; it is never parsed or interpreted beyond
// non-emptiness.
type UserID string

// IsZero reports whether the user ID is absent.
func (u UserID) IsZero() bool { return u == "" }

// RecordID identifies a single business record within one user's namespace.
type RecordID string

// IsZero reports whether the record ID is absent.
func (r RecordID) IsZero() bool { return r == "" }

// ParseRecordID constructs a RecordID from external input.
//
// Usage: call from transport adapters when parsing requests. Record IDs are
// opaque, but a malformed ID containing the key separator would break the
// authoritative key scheme, so it is rejected here.
func ParseRecordID(s string) (RecordID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record id cannot be empty")
	}
	if strings.ContainsAny(s, ": \t\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record id contains invalid characters")
	}
	return RecordID(s), nil
}
