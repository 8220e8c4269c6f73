package record

import (
	"fmt"

	"roadlog/pkg/domain"
)

// Authoritative key scheme: "{kind}:{userId}:{recordId}". Exactly one slot
// per record; tombstones overwrite the same key.

func storeKey(kind domain.Kind, userID domain.UserID, id domain.RecordID) string {
	return fmt.Sprintf("%s:%s:%s", kind, userID, id)
}

func userPrefix(kind domain.Kind, userID domain.UserID) string {
	return fmt.Sprintf("%s:%s:", kind, userID)
}
