package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
)

// Entry is one append-only record of a request's history. Sequence is dense
// and zero-based per request; the repository assigns it at insert time.
type Entry struct {
	RequestID  uuid.UUID
	Sequence   int64
	FromStatus request.Status
	ToStatus   request.Status
	ActorID    uuid.UUID
	Comment    string
	OccurredAt time.Time
}

// Initial is the creation record: a pending-to-pending entry at sequence
// zero, so the ledger carries the full history including birth.
func Initial(req *request.ApprovalRequest) *Entry {
	return &Entry{
		RequestID:  req.ID,
		FromStatus: request.StatusPending,
		ToStatus:   request.StatusPending,
		ActorID:    req.RequesterID,
		Comment:    "created",
		OccurredAt: req.RequestedAt,
	}
}

// FromTransition converts a fired state-machine transition into its ledger
// record.
func FromTransition(requestID uuid.UUID, t *request.AppliedTransition) *Entry {
	return &Entry{
		RequestID:  requestID,
		FromStatus: t.From,
		ToStatus:   t.To,
		ActorID:    t.ActorID,
		Comment:    t.Comment,
		OccurredAt: t.OccurredAt,
	}
}

// Verify checks the chain invariants over entries ordered by sequence:
// sequences are dense from zero, the first entry is the pending birth record,
// each entry's FromStatus matches its predecessor's ToStatus, and timestamps
// never go backwards.
func Verify(entries []*Entry) error {
	for i, e := range entries {
		if e.Sequence != int64(i) {
			return errors.Errorf("ledger gap: entry %d has sequence %d", i, e.Sequence)
		}
		if i == 0 {
			if e.FromStatus != request.StatusPending || e.ToStatus != request.StatusPending {
				return errors.Errorf("ledger must begin with the creation record, got %s -> %s", e.FromStatus, e.ToStatus)
			}
			continue
		}
		if e.FromStatus != entries[i-1].ToStatus {
			return errors.Errorf("ledger break at sequence %d: from %s but previous to %s", e.Sequence, e.FromStatus, entries[i-1].ToStatus)
		}
		if e.OccurredAt.Before(entries[i-1].OccurredAt) {
			return errors.Errorf("ledger time reversal at sequence %d", e.Sequence)
		}
	}
	return nil
}

type Repository interface {
	// Append persists the entry with the next sequence for its request and
	// returns the assigned sequence.
	Append(ctx context.Context, entry *Entry) (int64, error)
	// ForRequest returns all entries for a request ordered by sequence.
	ForRequest(ctx context.Context, requestID uuid.UUID) ([]*Entry, error)
}
