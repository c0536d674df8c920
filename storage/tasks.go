package storage

import (
	"context"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"devcollab/domain"
)

// taskPartition is the single partition holding every task row.
const taskPartition = "task"

// tableClient is the subset of *aztables.Client used by the adapters.
type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type taskEntity struct {
	Entity
	ETag            string `json:"odata.etag,omitempty"`
	TaskID          string `json:"TaskId"`
	AssignedTo      string `json:"AssignedTo"`
	ProjectID       string `json:"ProjectId"`
	Details         string `json:"Details"`
	Status          string `json:"Status"`
	PullRequestURL  string `json:"PullRequestUrl,omitempty"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type,omitempty"`
	LastChecked     int64  `json:"LastChecked,string"`
	LastCheckedType string `json:"LastChecked@odata.type,omitempty"`
}

// taskUpdate carries a merge of the mutable task fields.
type taskUpdate struct {
	Entity
	Status          *string `json:"Status,omitempty"`
	PullRequestURL  *string `json:"PullRequestUrl,omitempty"`
	LastChecked     *int64  `json:"LastChecked,omitempty,string"`
	LastCheckedType *string `json:"LastChecked@odata.type,omitempty"`
}

// taskRowKey escapes characters the table service forbids in keys.
func taskRowKey(id string) string {
	return url.PathEscape(id)
}

func encodeTask(t domain.Task) taskEntity {
	return taskEntity{
		Entity:          Entity{PartitionKey: taskPartition, RowKey: taskRowKey(t.ID)},
		TaskID:          t.ID,
		AssignedTo:      t.AssignedTo,
		ProjectID:       t.ProjectID,
		Details:         t.Details,
		Status:          t.Status.String(),
		PullRequestURL:  t.PullRequestURL,
		CreatedAt:       toMillis(t.CreatedAt),
		CreatedAtType:   EdmInt64,
		LastChecked:     toMillis(t.LastChecked),
		LastCheckedType: EdmInt64,
	}
}

func decodeTask(data []byte) (*domain.Task, error) {
	var ent taskEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(ent.Status)
	if err != nil {
		return nil, err
	}
	id := ent.TaskID
	if id == "" {
		if id, err = url.PathUnescape(ent.RowKey); err != nil {
			return nil, err
		}
	}
	return &domain.Task{
		ID:             id,
		AssignedTo:     ent.AssignedTo,
		ProjectID:      ent.ProjectID,
		Details:        ent.Details,
		Status:         st,
		PullRequestURL: ent.PullRequestURL,
		CreatedAt:      fromMillis(ent.CreatedAt),
		LastChecked:    fromMillis(ent.LastChecked),
		ETag:           ent.ETag,
	}, nil
}

func encodePatch(id string, p domain.TaskPatch) taskUpdate {
	upd := taskUpdate{Entity: Entity{PartitionKey: taskPartition, RowKey: taskRowKey(id)}}
	if p.Status != nil {
		s := p.Status.String()
		upd.Status = &s
	}
	if p.PullRequestURL != nil {
		u := *p.PullRequestURL
		upd.PullRequestURL = &u
	}
	if p.LastChecked != nil {
		ms := toMillis(*p.LastChecked)
		typ := EdmInt64
		upd.LastChecked = &ms
		upd.LastCheckedType = &typ
	}
	return upd
}

// Tasks implements domain.TaskStore on a table.
type Tasks struct {
	table tableClient
}

// NewTasks binds the named table of svc.
func NewTasks(svc *aztables.ServiceClient, table string) *Tasks {
	return &Tasks{table: svc.NewClient(table)}
}

func (s *Tasks) Get(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.table.GetEntity(ctx, taskPartition, taskRowKey(id), nil)
	if err != nil {
		return nil, mapError("get task", id, err)
	}
	t, err := decodeTask(resp.Value)
	if err != nil {
		return nil, &domain.StoreError{Op: "decode task " + id, Err: err}
	}
	t.ETag = string(resp.ETag)
	return t, nil
}

// PutFull creates or replaces the whole task document.
func (s *Tasks) PutFull(ctx context.Context, t domain.Task) error {
	payload, err := sonic.ConfigStd.Marshal(encodeTask(t))
	if err != nil {
		return &domain.StoreError{Op: "encode task " + t.ID, Err: err}
	}
	if _, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return mapError("put task", t.ID, err)
	}
	return nil
}

// Merge writes the fields set in patch and returns the new ETag. An empty
// etag matches any version.
func (s *Tasks) Merge(ctx context.Context, id string, patch domain.TaskPatch, etag string) (string, error) {
	if patch.Empty() {
		return etag, nil
	}
	payload, err := sonic.ConfigStd.Marshal(encodePatch(id, patch))
	if err != nil {
		return "", &domain.StoreError{Op: "encode patch " + id, Err: err}
	}
	et := azcore.ETagAny
	if etag != "" {
		et = azcore.ETag(etag)
	}
	resp, err := s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return "", mapError("merge task", id, err)
	}
	return string(resp.ETag), nil
}

// Delete removes a task. Deleting a missing task succeeds.
func (s *Tasks) Delete(ctx context.Context, id, etag string) error {
	var opts *aztables.DeleteEntityOptions
	if etag != "" {
		et := azcore.ETag(etag)
		opts = &aztables.DeleteEntityOptions{IfMatch: &et}
	}
	if _, err := s.table.DeleteEntity(ctx, taskPartition, taskRowKey(id), opts); err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapError("delete task", id, err)
	}
	return nil
}

// QueryByStatus lists every task currently in status, in no particular order.
func (s *Tasks) QueryByStatus(ctx context.Context, status domain.Status) ([]domain.Task, error) {
	filter := "PartitionKey eq " + quote(taskPartition) + " and Status eq " + quote(status.String())
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError("query tasks", status.String(), err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTask(e)
			if err != nil {
				return nil, &domain.StoreError{Op: "decode task", Err: err}
			}
			tasks = append(tasks, *t)
		}
	}
	return tasks, nil
}
