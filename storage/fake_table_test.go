package storage

import (
	"context"
	"strconv"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// fakeTable keeps rows of a single partition in memory and mimics the
// service's merge, ETag and not-found behavior.
type fakeTable struct {
	mu      sync.Mutex
	rows    map[string]map[string]any
	etags   map[string]string
	version int

	lastPayload []byte
	lastIfMatch *azcore.ETag
	lastFilter  string
	failWith    error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]any{}, etags: map[string]string{}}
}

func (f *fakeTable) bump(rk string) string {
	f.version++
	et := "W/\"" + strconv.Itoa(f.version) + "\""
	f.etags[rk] = et
	return et
}

func (f *fakeTable) put(rk string, row map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rk] = row
	f.bump(rk)
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return aztables.GetEntityResponse{}, f.failWith
	}
	row, ok := f.rows[rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	data, err := sonic.Marshal(row)
	if err != nil {
		return aztables.GetEntityResponse{}, err
	}
	return aztables.GetEntityResponse{ETag: azcore.ETag(f.etags[rk]), Value: data}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, entity []byte, _ *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPayload = entity
	var row map[string]any
	if err := sonic.Unmarshal(entity, &row); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	rk, _ := row["RowKey"].(string)
	f.rows[rk] = row
	return aztables.UpsertEntityResponse{ETag: azcore.ETag(f.bump(rk))}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPayload = entity
	f.lastIfMatch = opts.IfMatch
	var patch map[string]any
	if err := sonic.Unmarshal(entity, &patch); err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	rk, _ := patch["RowKey"].(string)
	row, ok := f.rows[rk]
	if !ok {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	if opts.IfMatch != nil && *opts.IfMatch != azcore.ETagAny && string(*opts.IfMatch) != f.etags[rk] {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 412}
	}
	for k, v := range patch {
		row[k] = v
	}
	return aztables.UpdateEntityResponse{ETag: azcore.ETag(f.bump(rk))}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[rk]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	delete(f.rows, rk)
	return aztables.DeleteEntityResponse{}, nil
}

// NewListEntitiesPager returns every row, one per page, ignoring the filter
// apart from recording it.
func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.mu.Lock()
	if opts != nil && opts.Filter != nil {
		f.lastFilter = *opts.Filter
	}
	var pages [][]byte
	for rk, row := range f.rows {
		withETag := map[string]any{"odata.etag": f.etags[rk]}
		for k, v := range row {
			withETag[k] = v
		}
		data, _ := sonic.Marshal(withETag)
		pages = append(pages, data)
	}
	f.mu.Unlock()

	next := 0
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool {
			return next < len(pages)
		},
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			if next >= len(pages) {
				return aztables.ListEntitiesResponse{}, nil
			}
			page := aztables.ListEntitiesResponse{Entities: [][]byte{pages[next]}}
			next++
			return page, nil
		},
	})
}
