// Package ports defines the interfaces this core consumes from or exposes to
// external collaborators. The collaborators themselves (HTTP transport,
// authentication, payment webhooks) live outside this repository; these
// contracts keep the boundary explicit.
package ports

import (
	"context"

	"roadlog/internal/audit"
	"roadlog/pkg/domain"
)

// RateLimiter is the sliding-window write throttle, orthogonal to the
// monthly quota counters that live inside the per-user index. The transport
// layer supplies the implementation; services apply it to creations when
// wired.
type RateLimiter interface {
	// Allow reports whether one write request from the user may proceed.
	Allow(ctx context.Context, userID domain.UserID) (bool, error)
}

// AuditPublisher emits audit events for record lifecycle operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
