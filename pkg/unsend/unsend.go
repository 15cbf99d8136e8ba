// Package unsend lets an author soft-delete their own messages.
//
// Ownership is checked here and nowhere else: a client talking to the store
// directly can still flag any message. Non-owners get a silent no-op.
package unsend

import (
	"context"

	"communitychat/pkg/logger"
	"communitychat/pkg/models"
	"communitychat/pkg/timeutil"
)

// Outcome describes what Unsend did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeNotOwner       Outcome = "not_owner"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeAlreadyDeleted Outcome = "already_deleted"
)

// Result is returned for every call that did not fail in transport.
type Result struct {
	MessageID string
	Outcome   Outcome
	DeletedAt int64
}

// Changed reports whether the store was written.
func (r Result) Changed() bool { return r.Outcome == OutcomeApplied }

// Store is the subset of the feed adapter the controller needs.
type Store interface {
	Lookup(ctx context.Context, id string) (models.Message, bool, error)
	SoftDelete(ctx context.Context, id string, deletedAt int64) error
}

type Controller struct {
	store Store
	clock timeutil.Clock
}

func New(store Store, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.System
	}
	return &Controller{store: store, clock: clock}
}

// Unsend soft-deletes messageID when requesterID wrote it. Store errors are
// returned as they come from the store (TransportError).
func (c *Controller) Unsend(ctx context.Context, messageID, requesterID string) (Result, error) {
	res := Result{MessageID: messageID}
	msg, ok, err := c.store.Lookup(ctx, messageID)
	if err != nil {
		return res, err
	}
	switch {
	case !ok:
		res.Outcome = OutcomeNotFound
		return res, nil
	case msg.AuthorID != requesterID:
		res.Outcome = OutcomeNotOwner
		logger.Info("unsend_not_owner", "id", messageID, "requester", requesterID)
		return res, nil
	case msg.Deleted:
		res.Outcome = OutcomeAlreadyDeleted
		res.DeletedAt = msg.DeletedAt
		return res, nil
	}

	now := timeutil.UnixMillis(c.clock.Now())
	if err := c.store.SoftDelete(ctx, messageID, now); err != nil {
		return res, err
	}
	res.Outcome = OutcomeApplied
	res.DeletedAt = now
	logger.Info("unsend_applied", "id", messageID)
	return res, nil
}
