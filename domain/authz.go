package domain

// Project is the slice of a project needed to authorize task actions.
type Project struct {
	ID        string   `json:"id"`
	CreatorID string   `json:"creatorId"`
	MemberIDs []string `json:"memberIds"`
}

// User is an actor. AccessToken is only populated by the directory.
type User struct {
	ID          string
	AccessToken string
}

func IsProjectCreator(p *Project, u User) bool {
	return p != nil && u.ID != "" && p.CreatorID == u.ID
}

func IsProjectMember(p *Project, u User) bool {
	if p == nil || u.ID == "" {
		return false
	}
	for _, id := range p.MemberIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func IsTaskAssignee(t *Task, u User) bool {
	return t != nil && u.ID != "" && t.AssignedTo == u.ID
}
