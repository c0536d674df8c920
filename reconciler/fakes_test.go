package reconciler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"devcollab/domain"
)

type memStore struct {
	mu       sync.Mutex
	tasks    map[string]domain.Task
	version  int
	queryErr error
	// mergeErrs fails LastChecked merges for the given task ids.
	mergeErrs map[string]error
}

func newMemStore(tasks ...domain.Task) *memStore {
	s := &memStore{tasks: map[string]domain.Task{}, mergeErrs: map[string]error{}}
	for _, t := range tasks {
		s.version++
		t.ETag = strconv.Itoa(s.version)
		s.tasks[t.ID] = t
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) PutFull(ctx context.Context, t domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	t.ETag = strconv.Itoa(s.version)
	s.tasks[t.ID] = t
	return nil
}

func (s *memStore) Merge(ctx context.Context, id string, p domain.TaskPatch, etag string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mergeErrs[id]; err != nil && p.LastChecked != nil {
		return "", err
	}
	t, ok := s.tasks[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	if etag != "" && etag != t.ETag {
		return "", domain.ErrConcurrencyConflict
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PullRequestURL != nil {
		t.PullRequestURL = *p.PullRequestURL
	}
	if p.LastChecked != nil {
		t.LastChecked = *p.LastChecked
	}
	s.version++
	t.ETag = strconv.Itoa(s.version)
	s.tasks[id] = t
	return t.ETag, nil
}

func (s *memStore) Delete(ctx context.Context, id, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	if etag != "" && etag != t.ETag {
		return domain.ErrConcurrencyConflict
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) QueryByStatus(ctx context.Context, status domain.Status) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

type memDirectory struct {
	projects map[string]domain.Project
	users    map[string]domain.User
}

func (d *memDirectory) Project(ctx context.Context, id string) (*domain.Project, error) {
	p, ok := d.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (d *memDirectory) User(ctx context.Context, id string) (*domain.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

// newMemDirectory returns project 3 created by user 1 (token creator-token)
// with member 7, and project 5 whose creator has no token.
func newMemDirectory() *memDirectory {
	return &memDirectory{
		projects: map[string]domain.Project{
			"3": {ID: "3", CreatorID: "1", MemberIDs: []string{"1", "7"}},
			"5": {ID: "5", CreatorID: "9", MemberIDs: []string{"9", "7"}},
		},
		users: map[string]domain.User{
			"1": {ID: "1", AccessToken: "creator-token"},
			"7": {ID: "7", AccessToken: "assignee-token"},
			"9": {ID: "9"},
		},
	}
}

type prState struct {
	merged bool
	closed bool
	err    error
	panic  bool
	delay  time.Duration
}

type fakeOracle struct {
	mu     sync.Mutex
	prs    map[int]prState
	tokens []string
	calls  int
}

func (o *fakeOracle) lookup(ctx context.Context, ref domain.PullRequestRef, credential string) (prState, error) {
	o.mu.Lock()
	o.calls++
	o.tokens = append(o.tokens, credential)
	st, ok := o.prs[ref.Number]
	o.mu.Unlock()
	if !ok {
		return prState{}, errors.New("unknown pull request")
	}
	if st.panic {
		panic("oracle exploded")
	}
	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-ctx.Done():
			return prState{}, errors.Join(domain.ErrOracleUnavailable, ctx.Err())
		}
	}
	if st.err != nil {
		return prState{}, st.err
	}
	return st, nil
}

func (o *fakeOracle) IsMerged(ctx context.Context, ref domain.PullRequestRef, credential string) (bool, error) {
	st, err := o.lookup(ctx, ref, credential)
	return st.merged, err
}

func (o *fakeOracle) IsClosed(ctx context.Context, ref domain.PullRequestRef, credential string) (bool, error) {
	st, err := o.lookup(ctx, ref, credential)
	return st.closed, err
}

func awaiting(id string, pr int) domain.Task {
	return domain.Task{
		ID:             id,
		AssignedTo:     "7",
		ProjectID:      "3",
		Details:        id,
		Status:         domain.StatusRequestComplete,
		PullRequestURL: "https://github.com/acme/widgets/pull/" + strconv.Itoa(pr),
	}
}
