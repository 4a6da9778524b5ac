package todo

import "iter"

// Task is a single to-do item.
type Task struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeValidationSkipped
	OutcomeNotFound
	OutcomeDeleteScheduled
	OutcomeDeleteCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeValidationSkipped:
		return "validation_skipped"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDeleteScheduled:
		return "delete_scheduled"
	case OutcomeDeleteCancelled:
		return "delete_cancelled"
	default:
		return "unknown"
	}
}

// Result carries the authoritative collection after an operation
// and what the operation did to it.
type Result struct {
	Tasks   []Task
	Outcome Outcome
	// Pending lists the ids awaiting deletion, in canonical order.
	Pending []string
}

// Codec converts a whole collection to and from its stored form.
type Codec interface {
	Name() string
	Marshal(tasks []Task) ([]byte, error)
	Unmarshal(data []byte) ([]Task, error)
}

// CommitHook observes deletions committed after their delay.
type CommitHook func(result Result, err error)

// Manager is the set of operations a UI layer drives.
type Manager interface {
	// Load re-reads the persisted collection, falling back to empty.
	Load() []Task
	// Tasks returns the current canonical collection.
	Tasks() []Task
	// View returns the tasks matching term along with the pending deletions.
	View(term string) Result

	Create(rawText string) (Result, error)
	Edit(id, rawText string) (Result, error)
	// Delete schedules removal of id after the commit delay.
	Delete(id string) (Result, error)
	// CancelDelete stops a pending deletion of id.
	CancelDelete(id string) (Result, error)
	ToggleComplete(id string) (Result, error)
	Sort(ascending bool) (Result, error)

	// Search yields tasks whose text contains term, ignoring case.
	Search(term string) iter.Seq[Task]
	// Pending reports whether a deletion of id is waiting to commit.
	Pending(id string) bool
}
