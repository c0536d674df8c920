package domain

import "testing"

func TestAuthorizationPredicates(t *testing.T) {
	p := &Project{ID: "3", CreatorID: "1", MemberIDs: []string{"1", "7"}}
	task := &Task{ID: "7_x_3", AssignedTo: "7", ProjectID: "3"}

	tests := []struct {
		name    string
		user    User
		creator bool
		member  bool
		assign  bool
	}{
		{name: "creator", user: User{ID: "1"}, creator: true, member: true},
		{name: "assignee", user: User{ID: "7"}, member: true, assign: true},
		{name: "outsider", user: User{ID: "9"}},
		{name: "anonymous", user: User{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProjectCreator(p, tt.user); got != tt.creator {
				t.Fatalf("IsProjectCreator = %v", got)
			}
			if got := IsProjectMember(p, tt.user); got != tt.member {
				t.Fatalf("IsProjectMember = %v", got)
			}
			if got := IsTaskAssignee(task, tt.user); got != tt.assign {
				t.Fatalf("IsTaskAssignee = %v", got)
			}
		})
	}

	if IsProjectCreator(nil, User{ID: "1"}) || IsProjectMember(nil, User{ID: "1"}) || IsTaskAssignee(nil, User{ID: "7"}) {
		t.Fatalf("nil aggregates must never authorize")
	}
}
