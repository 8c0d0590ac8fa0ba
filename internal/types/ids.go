// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type EventID string
type ThreadKey string
type SubscriptionID string
type AttemptID string

func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.New().String())
}

func NewAttemptID() AttemptID {
	return AttemptID(uuid.New().String())
}

// NewThreadKey joins the parts into a colon-separated key, the same shape
// platform adapters use (e.g. "telegram:123456").
func NewThreadKey(parts ...string) ThreadKey {
	return ThreadKey(strings.Join(parts, ":"))
}
