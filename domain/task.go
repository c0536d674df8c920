package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status int

const (
	StatusUnknown Status = iota
	StatusRequested
	StatusPending
	StatusRequestComplete
	StatusCompleted
	StatusRejected
	StatusRequestRejected
)

var statusNames = map[Status]string{
	StatusRequested:       "REQUESTED",
	StatusPending:         "PENDING",
	StatusRequestComplete: "REQUEST_COMPLETE",
	StatusCompleted:       "COMPLETED",
	StatusRejected:        "REJECTED",
	StatusRequestRejected: "REQUEST_REJECTED",
}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("cannot marshal status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Deletes reports whether reaching s removes the task record.
func (s Status) Deletes() bool {
	return s == StatusRejected || s == StatusRequestRejected
}

// Task is a unit of assigned work tracked through the status lifecycle.
type Task struct {
	ID             string    `json:"id"`
	AssignedTo     string    `json:"assignedTo"`
	ProjectID      string    `json:"projectId"`
	Details        string    `json:"details"`
	Status         Status    `json:"status"`
	PullRequestURL string    `json:"pullRequestUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastChecked    time.Time `json:"lastChecked,omitzero"`

	// ETag is the store's concurrency token for the version that was read.
	ETag string `json:"-"`
}

// TaskPatch carries a field-level merge. Nil fields are left untouched.
type TaskPatch struct {
	Status         *Status
	PullRequestURL *string
	LastChecked    *time.Time
}

// Empty reports whether the patch writes nothing.
func (p TaskPatch) Empty() bool {
	return p.Status == nil && p.PullRequestURL == nil && p.LastChecked == nil
}

// TaskID derives the deterministic task identifier.
func TaskID(assigneeID, details, projectID string) string {
	return assigneeID + "_" + details + "_" + projectID
}
