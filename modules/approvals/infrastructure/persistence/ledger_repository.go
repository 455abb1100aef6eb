package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/ledger"
	"github.com/quarry-data/quarry/modules/approvals/infrastructure/persistence/models"
	"github.com/quarry-data/quarry/pkg/composables"
)

type LedgerRepository struct{}

func NewLedgerRepository() ledger.Repository {
	return &LedgerRepository{}
}

// Append assigns the next dense sequence for the request inside the insert
// itself, so concurrent writers in separate transactions cannot produce a
// gap. The (request_id, sequence) primary key turns a lost race into a
// retryable unique violation instead of a silent overwrite.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var sequence int64
	err = tx.QueryRow(ctx, `
		INSERT INTO approval_ledger (request_id, sequence, from_status, to_status, actor_id, comment, occurred_at)
		VALUES (
			$1,
			(SELECT COALESCE(MAX(sequence) + 1, 0) FROM approval_ledger WHERE request_id = $1),
			$2, $3, $4, $5, $6
		)
		RETURNING sequence`,
		entry.RequestID,
		string(entry.FromStatus), string(entry.ToStatus),
		entry.ActorID, entry.Comment, entry.OccurredAt,
	).Scan(&sequence)
	if err != nil {
		return 0, err
	}
	entry.Sequence = sequence
	return sequence, nil
}

func (r *LedgerRepository) ForRequest(ctx context.Context, requestID uuid.UUID) ([]*ledger.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT request_id, sequence, from_status, to_status, actor_id, comment, occurred_at
		FROM approval_ledger
		WHERE request_id = $1
		ORDER BY sequence ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var row models.LedgerEntry
		if err := rows.Scan(
			&row.RequestID, &row.Sequence, &row.FromStatus, &row.ToStatus,
			&row.ActorID, &row.Comment, &row.OccurredAt,
		); err != nil {
			return nil, err
		}
		entry, err := toDomainLedgerEntry(&row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
