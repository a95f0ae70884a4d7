package catalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a post attempt.
type Status string

const (
	StatusPending              Status = "pending"
	StatusUploading            Status = "uploading"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPublished            Status = "published"
	StatusFailed               Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusAwaitingConfirmation,
	StatusPublished,
	StatusFailed,
}

// AllStatuses lists every attempt state in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus maps user input to an attempt state, tolerating case and
// surrounding whitespace.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether a status ends the attempt lifecycle.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// FailureReason explains why an attempt finished in the failed status.
type FailureReason string

const (
	ReasonMediaUnavailable    FailureReason = "media_unavailable"
	ReasonPublishInitFailed   FailureReason = "publish_init_failed"
	ReasonRemoteRejected      FailureReason = "remote_rejected"
	ReasonConfirmationTimeout FailureReason = "confirmation_timeout"
	ReasonTimeout             FailureReason = "timeout"
	ReasonInvalidItem         FailureReason = "invalid_item"
	ReasonUnexpected          FailureReason = "unexpected_error"
)

// Item represents a catalog entry eligible for posting.
//
// Key is the stable external identifier and stays unique across active and
// inactive items alike. PostCount and LastPostedAt are the rotation stats:
// they move only when an attempt reaches the published status, so a failed
// run leaves the item exactly as eligible as it was before.
type Item struct {
	ID           int64
	Key          string
	Name         string
	Price        int64
	MediaRef     string
	Category     string
	Description  string
	SourceURL    string
	PostCount    int64
	LastPostedAt *time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attempt is one append-only record of driving an item toward publication.
type Attempt struct {
	ID            int64
	ItemKey       string
	PostText      string
	MediaURL      string
	PublishID     string
	Status        Status
	FailureReason FailureReason
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SetFailed marks the attempt as failed with the given reason and message.
func (a *Attempt) SetFailed(reason FailureReason, message string) {
	a.Status = StatusFailed
	a.FailureReason = reason
	a.ErrorMessage = message
}

// SetPublished finalizes the attempt as successfully published.
func (a *Attempt) SetPublished() {
	a.Status = StatusPublished
	a.FailureReason = ""
	a.ErrorMessage = ""
}
