package domain

// assigneeTransitions are the edges an assignee may take.
var assigneeTransitions = map[Status][]Status{
	StatusRequested: {StatusPending, StatusRejected},
	StatusPending:   {StatusRequestComplete, StatusRejected},
}

// completionTransitions are the edges taken by the project creator or, on the
// creator's behalf, by reconciliation.
var completionTransitions = map[Status][]Status{
	StatusRequestComplete: {StatusCompleted, StatusRequestRejected},
}

func allowed(edges map[Status][]Status, from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// reaches reports whether some edge in edges ends at to.
func reaches(edges map[Status][]Status, to Status) bool {
	for _, targets := range edges {
		for _, s := range targets {
			if s == to {
				return true
			}
		}
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return allowed(assigneeTransitions, from, to) || allowed(completionTransitions, from, to)
}
