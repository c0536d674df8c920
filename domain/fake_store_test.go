package domain

import (
	"context"
	"strconv"
	"sync"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]Task
	version int
	writes  int
	deletes []string

	// beforeWrite runs once before the next Merge or Delete, used to
	// simulate a concurrent writer.
	beforeWrite func(f *fakeStore)
	mergeErr    error
	deleteErr   error
}

func newFakeStore(tasks ...Task) *fakeStore {
	f := &fakeStore{tasks: map[string]Task{}}
	for _, t := range tasks {
		f.version++
		t.ETag = strconv.Itoa(f.version)
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeStore) Get(ctx context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (f *fakeStore) PutFull(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version++
	t.ETag = strconv.Itoa(f.version)
	f.tasks[t.ID] = t
	f.writes++
	return nil
}

func (f *fakeStore) Merge(ctx context.Context, id string, p TaskPatch, etag string) (string, error) {
	f.runBeforeWrite()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return "", f.mergeErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return "", ErrNotFound
	}
	if etag != "" && etag != t.ETag {
		return "", ErrConcurrencyConflict
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
	f.version++
	t.ETag = strconv.Itoa(f.version)
	f.tasks[id] = t
	f.writes++
	return t.ETag, nil
}

func (f *fakeStore) Delete(ctx context.Context, id, etag string) error {
	f.runBeforeWrite()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	if etag != "" && etag != t.ETag {
		return ErrConcurrencyConflict
	}
	delete(f.tasks, id)
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeStore) QueryByStatus(ctx context.Context, status Status) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Task
	for _, t := range f.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) runBeforeWrite() {
	if hook := f.beforeWrite; hook != nil {
		f.beforeWrite = nil
		hook(f)
	}
}

// set overwrites a stored task directly, bumping its version.
func (f *fakeStore) set(t Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version++
	t.ETag = strconv.Itoa(f.version)
	f.tasks[t.ID] = t
}

func (f *fakeStore) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes + len(f.deletes)
}

type fakeDirectory struct {
	projects map[string]Project
	users    map[string]User
}

func (d *fakeDirectory) Project(ctx context.Context, id string) (*Project, error) {
	p, ok := d.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (d *fakeDirectory) User(ctx context.Context, id string) (*User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// newDirectory returns project 3 created by user 1 with members 1 and 7, plus
// an outsider 9.
func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		projects: map[string]Project{
			"3": {ID: "3", CreatorID: "1", MemberIDs: []string{"1", "7"}},
		},
		users: map[string]User{
			"1": {ID: "1", AccessToken: "creator-token"},
			"7": {ID: "7", AccessToken: "assignee-token"},
			"9": {ID: "9"},
		},
	}
}

// cachingDirectory serves stale projects until they are evicted.
type cachingDirectory struct {
	*fakeDirectory
	stale   map[string]Project
	evicted []string
}

func (d *cachingDirectory) Project(ctx context.Context, id string) (*Project, error) {
	if p, ok := d.stale[id]; ok {
		return &p, nil
	}
	return d.fakeDirectory.Project(ctx, id)
}

func (d *cachingDirectory) Evict(ctx context.Context, id string) {
	delete(d.stale, id)
	d.evicted = append(d.evicted, id)
}
