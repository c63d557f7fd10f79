package domain

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is one row change from the reports table. For deletes Report is
// the row as it was before removal; for updates Previous holds the old row
// without its description and photo_url.
type ChangeEvent struct {
	Kind     EventKind `json:"kind"`
	Report   *Report   `json:"report"`
	Previous *Report   `json:"previous,omitempty"`
}
