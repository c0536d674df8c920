package storage

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"devcollab/domain"
)

const (
	projectPartition = "project"
	userPartition    = "user"
)

type projectEntity struct {
	Entity
	CreatorID string `json:"CreatorId"`
	MemberIDs string `json:"MemberIds"`
}

type userEntity struct {
	Entity
	AccessToken string `json:"AccessToken,omitempty"`
}

// Directory reads projects and users provisioned by the surrounding
// application. It implements domain.Directory.
type Directory struct {
	projects tableClient
	users    tableClient
}

func NewDirectory(svc *aztables.ServiceClient, projectsTable, usersTable string) *Directory {
	return &Directory{projects: svc.NewClient(projectsTable), users: svc.NewClient(usersTable)}
}

func (d *Directory) Project(ctx context.Context, id string) (*domain.Project, error) {
	resp, err := d.projects.GetEntity(ctx, projectPartition, id, nil)
	if err != nil {
		return nil, mapError("get project", id, err)
	}
	p, err := decodeProject(resp.Value)
	if err != nil {
		return nil, &domain.StoreError{Op: "decode project " + id, Err: err}
	}
	return p, nil
}

func (d *Directory) User(ctx context.Context, id string) (*domain.User, error) {
	resp, err := d.users.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		return nil, mapError("get user", id, err)
	}
	var ent userEntity
	if err := sonic.ConfigStd.Unmarshal(resp.Value, &ent); err != nil {
		return nil, &domain.StoreError{Op: "decode user " + id, Err: err}
	}
	return &domain.User{ID: ent.RowKey, AccessToken: ent.AccessToken}, nil
}

func decodeProject(data []byte) (*domain.Project, error) {
	var ent projectEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	p := &domain.Project{ID: ent.RowKey, CreatorID: ent.CreatorID}
	for _, m := range strings.Split(ent.MemberIDs, ",") {
		if m = strings.TrimSpace(m); m != "" {
			p.MemberIDs = append(p.MemberIDs, m)
		}
	}
	return p, nil
}
