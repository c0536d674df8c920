package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// TaskStore defines the document operations the lifecycle relies on.
type TaskStore interface {
	Get(ctx context.Context, id string) (*Task, error)
	PutFull(ctx context.Context, t Task) error
	// Merge writes only the fields set in patch. An empty etag makes the
	// write unconditional; a stale one yields ErrConcurrencyConflict.
	Merge(ctx context.Context, id string, patch TaskPatch, etag string) (string, error)
	Delete(ctx context.Context, id, etag string) error
	QueryByStatus(ctx context.Context, status Status) ([]Task, error)
}

// Directory resolves the projects and users owned by the surrounding
// application.
type Directory interface {
	Project(ctx context.Context, id string) (*Project, error)
	User(ctx context.Context, id string) (*User, error)
}

// ProjectEvicter is implemented by directories that cache projects. Access
// checks that fail against a cached project are retried once after Evict.
type ProjectEvicter interface {
	Evict(ctx context.Context, projectID string)
}

// maxWriteAttempts bounds re-read and re-validate cycles on ETag conflicts.
const maxWriteAttempts = 3

// TaskService enforces the task lifecycle.
type TaskService struct {
	st  TaskStore
	dir Directory
	now func() time.Time
}

func NewTaskService(st TaskStore, dir Directory) *TaskService {
	return &TaskService{st: st, dir: dir, now: time.Now}
}

// Assign creates or re-creates the task identified by (assignee, details,
// project) in REQUESTED state.
func (s *TaskService) Assign(ctx context.Context, projectID, assigneeID, details string, actor User) (*Task, error) {
	if strings.TrimSpace(projectID) == "" || strings.TrimSpace(assigneeID) == "" || strings.TrimSpace(details) == "" {
		return nil, fmt.Errorf("%w: project, assignee and details are required", ErrInvalidArgument)
	}
	var assignee *User
	err := s.checkProject(ctx, projectID, func(project *Project) error {
		if !IsProjectCreator(project, actor) {
			return fmt.Errorf("%w: only the project creator can assign tasks", ErrUnauthorized)
		}
		if assignee == nil {
			u, err := s.dir.User(ctx, assigneeID)
			if err != nil {
				return fmt.Errorf("assignee %s: %w", assigneeID, err)
			}
			assignee = u
		}
		if !IsProjectMember(project, *assignee) {
			return fmt.Errorf("%w: user %s is not a member of project %s", ErrInvariant, assigneeID, projectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t := Task{
		ID:         TaskID(assigneeID, details, projectID),
		AssignedTo: assigneeID,
		ProjectID:  projectID,
		Details:    details,
		Status:     StatusRequested,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.st.PutFull(ctx, t); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"task": t.ID, "project": projectID, "assignee": assigneeID}).Info("task assigned")
	return &t, nil
}

// Get returns a task to its assignee or to a creator or member of its project.
func (s *TaskService) Get(ctx context.Context, taskID string, actor User) (*Task, error) {
	t, err := s.st.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if IsTaskAssignee(t, actor) {
		return t, nil
	}
	err = s.checkProject(ctx, t.ProjectID, func(project *Project) error {
		if !IsProjectCreator(project, actor) && !IsProjectMember(project, actor) {
			return fmt.Errorf("%w: task %s is not visible to %s", ErrUnauthorized, taskID, actor.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateStatus applies an assignee transition. A non-empty pullRequestURL is
// stored whatever the outcome of the transition.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID string, newStatus Status, pullRequestURL string, actor User) (*Task, error) {
	t, err := s.st.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !IsTaskAssignee(t, actor) {
		return nil, fmt.Errorf("%w: task %s was not assigned to %s", ErrUnauthorized, taskID, actor.ID)
	}
	if pullRequestURL != "" {
		etag, err := s.st.Merge(ctx, taskID, TaskPatch{PullRequestURL: &pullRequestURL}, "")
		if err != nil {
			return nil, err
		}
		t.PullRequestURL = pullRequestURL
		t.ETag = etag
	}
	return s.transition(ctx, t, newStatus, assigneeTransitions)
}

// UpdateCompletion lets the project creator approve or reject a completion
// request.
func (s *TaskService) UpdateCompletion(ctx context.Context, taskID string, newStatus Status, actor User) (*Task, error) {
	t, err := s.st.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	err = s.checkProject(ctx, t.ProjectID, func(project *Project) error {
		if !IsProjectCreator(project, actor) {
			return fmt.Errorf("%w: only the project creator can update task completion", ErrUnauthorized)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, t, newStatus, completionTransitions)
}

// ResolveCompletion is the system-initiated form of UpdateCompletion. The
// pull request state stands in for the creator's decision, so no actor is
// checked.
func (s *TaskService) ResolveCompletion(ctx context.Context, taskID string, newStatus Status) (*Task, error) {
	t, err := s.st.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, t, newStatus, completionTransitions)
}

// Delete removes a task on behalf of its assignee or the project creator.
func (s *TaskService) Delete(ctx context.Context, taskID string, actor User) error {
	t, err := s.st.Get(ctx, taskID)
	if err != nil {
		return err
	}
	err = s.checkProject(ctx, t.ProjectID, func(project *Project) error {
		if !IsProjectCreator(project, actor) && !IsTaskAssignee(t, actor) {
			return fmt.Errorf("%w: task %s cannot be deleted by %s", ErrUnauthorized, taskID, actor.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.st.Delete(ctx, taskID, ""); err != nil {
		return err
	}
	log.WithFields(log.Fields{"task": taskID, "by": actor.ID}).Info("task deleted")
	return nil
}

// checkProject runs check against the project. When the directory caches
// projects, a refusal is re-checked once against a fresh copy so a recent
// membership change is honoured.
func (s *TaskService) checkProject(ctx context.Context, projectID string, check func(*Project) error) error {
	project, err := s.dir.Project(ctx, projectID)
	if err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	err = check(project)
	ev, caches := s.dir.(ProjectEvicter)
	if err == nil || !caches || !(errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvariant)) {
		return err
	}

	ev.Evict(ctx, projectID)
	log.WithFields(log.Fields{"project": projectID, "error": err.Error()}).Debug("access refused on cached project, re-reading")
	if project, err = s.dir.Project(ctx, projectID); err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	return check(project)
}

// CreatorCredential returns the access token of the creator of the task's
// project.
func (s *TaskService) CreatorCredential(ctx context.Context, t Task) (string, error) {
	project, err := s.dir.Project(ctx, t.ProjectID)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", t.ProjectID, err)
	}
	creator, err := s.dir.User(ctx, project.CreatorID)
	if err != nil {
		return "", fmt.Errorf("creator %s: %w", project.CreatorID, err)
	}
	if creator.AccessToken == "" {
		return "", fmt.Errorf("%w: creator %s of project %s", ErrMissingCredential, creator.ID, project.ID)
	}
	return creator.AccessToken, nil
}

// transition validates t.Status -> to against edges and writes it guarded by
// the task's ETag. On a conflict the task is re-read and re-validated.
// Transitions into a deleting status remove the record in a single
// conditional delete, so a failure leaves the task in its previous state.
func (s *TaskService) transition(ctx context.Context, t *Task, to Status, edges map[Status][]Status) (*Task, error) {
	for attempt := 1; ; attempt++ {
		from := t.Status
		if from == to && to.Deletes() && reaches(edges, to) {
			// A record marked by an earlier write but never removed.
			return s.remove(ctx, t, from, to, "")
		}
		if !allowed(edges, from, to) {
			return nil, fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, from, to, t.ID)
		}

		var err error
		if to.Deletes() {
			var done *Task
			if done, err = s.remove(ctx, t, from, to, t.ETag); err == nil {
				return done, nil
			}
		} else {
			var etag string
			if etag, err = s.st.Merge(ctx, t.ID, TaskPatch{Status: &to}, t.ETag); err == nil {
				t.Status = to
				t.ETag = etag
				log.WithFields(log.Fields{"task": t.ID, "from": from, "to": to}).Info("task status updated")
				return t, nil
			}
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= maxWriteAttempts {
			return nil, err
		}
		log.WithFields(log.Fields{"task": t.ID, "attempt": attempt}).Warn("task changed during transition, re-reading")
		if t, err = s.st.Get(ctx, t.ID); err != nil {
			return nil, err
		}
	}
}

func (s *TaskService) remove(ctx context.Context, t *Task, from, to Status, etag string) (*Task, error) {
	if err := s.st.Delete(ctx, t.ID, etag); err != nil {
		return nil, err
	}
	t.Status = to
	t.ETag = ""
	log.WithFields(log.Fields{"task": t.ID, "from": from, "to": to}).Info("task closed and deleted")
	return t, nil
}
