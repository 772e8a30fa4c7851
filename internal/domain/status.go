package domain

import "context"

// StatusName is the reference name of a lifecycle state shared by audits and forms.
type StatusName string

const (
	StatusDraft    StatusName = "draft"
	StatusPending  StatusName = "pending"
	StatusRevising StatusName = "revising"
	StatusRejected StatusName = "rejected"
	StatusApproved StatusName = "approved"
)

// Fixed status identifiers seeded by the schema migration. Review decisions
// are posted with these ids.
const (
	StatusIDDraft    int64 = 1
	StatusIDPending  int64 = 2
	StatusIDRevising int64 = 3
	StatusIDRejected int64 = 4
	StatusIDApproved int64 = 5
)

type Status struct {
	ID   int64      `json:"id"`
	Name StatusName `json:"name"`
}

// ReviewDecision returns the status name a reviewer may set for the given id.
// Only approval and rejection are review decisions.
func ReviewDecision(statusID int64) (StatusName, bool) {
	switch statusID {
	case StatusIDApproved:
		return StatusApproved, true
	case StatusIDRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

type StatusRepository interface {
	List(ctx context.Context) ([]*Status, error)
}

// StatusIndex keys statuses by name.
type StatusIndex map[StatusName]*Status

func NewStatusIndex(statuses []*Status) StatusIndex {
	idx := make(StatusIndex, len(statuses))
	for _, s := range statuses {
		idx[s.Name] = s
	}
	return idx
}

// IDs resolves names to ids. A missing reference row is reported as ErrNotFound.
func (idx StatusIndex) IDs(names ...StatusName) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		s, ok := idx[n]
		if !ok {
			return nil, &MissingStatusError{Name: n}
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// MissingStatusError reports a status reference row that does not exist.
type MissingStatusError struct {
	Name StatusName
}

func (e *MissingStatusError) Error() string {
	return "domain: status " + string(e.Name) + " not found"
}

func (e *MissingStatusError) Unwrap() error { return ErrNotFound }
