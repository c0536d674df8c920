package api

import (
	"context"

	"devcollab/domain"
)

// Tasks is the subset of the task service used by the HTTP handlers.
type Tasks interface {
	Assign(ctx context.Context, projectID, assigneeID, details string, actor domain.User) (*domain.Task, error)
	Get(ctx context.Context, taskID string, actor domain.User) (*domain.Task, error)
	UpdateStatus(ctx context.Context, taskID string, newStatus domain.Status, pullRequestURL string, actor domain.User) (*domain.Task, error)
	UpdateCompletion(ctx context.Context, taskID string, newStatus domain.Status, actor domain.User) (*domain.Task, error)
	Delete(ctx context.Context, taskID string, actor domain.User) error
}

// Authenticator resolves the caller from the Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type assignRequest struct {
	AssigneeID string `json:"assigneeId"`
	Details    string `json:"details"`
}

type statusRequest struct {
	Status         domain.Status `json:"status"`
	PullRequestURL string        `json:"pullRequestUrl,omitempty"`
}

type completionRequest struct {
	Status domain.Status `json:"status"`
}
