package credentials

import (
	"strings"
	"time"
)

// State describes where a credential record sits in its lifecycle.
type State string

const (
	// StateValid means the access token can be used as-is.
	StateValid State = "valid"
	// StateNearExpiry means the token still works but falls inside the
	// refresh margin and should be replaced before use.
	StateNearExpiry State = "near_expiry"
	// StateExpired means the token's lifetime has fully elapsed.
	StateExpired State = "expired"
	// StateRefreshing marks an in-flight refresh exchange.
	StateRefreshing State = "refreshing"
	// StateInvalid means no usable credentials exist. Terminal for a run.
	StateInvalid State = "invalid"
)

// Record is the singleton credential pair used for publish calls. A refresh
// replaces the whole record at once, never individual fields.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
	UpdatedAt    time.Time
}

// Empty reports whether the record carries no credentials at all.
func (r Record) Empty() bool {
	return strings.TrimSpace(r.AccessToken) == "" && strings.TrimSpace(r.RefreshToken) == ""
}

// EvaluateState classifies a record at a point in time given the refresh
// margin. A record without an expiry is treated as expired so it gets
// refreshed before first use.
func EvaluateState(record Record, now time.Time, margin time.Duration) State {
	if record.Empty() {
		return StateInvalid
	}
	if strings.TrimSpace(record.AccessToken) == "" || record.ExpiresAt.IsZero() {
		return StateExpired
	}
	remaining := record.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return StateExpired
	case remaining <= margin:
		return StateNearExpiry
	default:
		return StateValid
	}
}
