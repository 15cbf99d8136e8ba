package models

// Identity is the locally persisted anonymous participant.
type Identity struct {
	LocalID     string `json:"local_id"`
	DisplayName string `json:"display_name"`
}

// Message is the domain view of one feed entry.
type Message struct {
	// ID is the store-assigned key; immutable once assigned.
	ID         string `json:"id"`
	Text       string `json:"text"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	// CreatedAt is assigned by the store at write time (unix ms).
	CreatedAt int64 `json:"created_at"`
	Deleted   bool  `json:"deleted"`
	// DeletedAt is zero unless Deleted is set.
	DeletedAt int64 `json:"deleted_at,omitempty"`
}

// Record is the JSON wire shape stored under communityChat/messages/<id>.
// Field names are fixed by existing clients.
type Record struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId"`
	IsDeleted bool   `json:"isDeleted"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`
}

// Wire field names, used when building partial updates.
const (
	FieldText      = "text"
	FieldUsername  = "username"
	FieldTimestamp = "timestamp"
	FieldUserID    = "userId"
	FieldIsDeleted = "isDeleted"
	FieldDeletedAt = "deletedAt"
)

// ToMessage converts a stored record to the domain view.
func (r Record) ToMessage(id string) Message {
	m := Message{
		ID:         id,
		Text:       r.Text,
		AuthorID:   r.UserID,
		AuthorName: r.Username,
		CreatedAt:  r.Timestamp,
		Deleted:    r.IsDeleted,
	}
	if r.DeletedAt != nil {
		m.DeletedAt = *r.DeletedAt
	}
	return m
}
