package models

import "time"

type ApprovalRequest struct {
	ID            string
	Kind          string
	RequesterID   string
	DatasetID     *string
	Justification string
	Status        string
	AdminID       *string
	AdminComments *string
	RequestedAt   time.Time
	ProcessedAt   *time.Time
	Version       int64
}

type LedgerEntry struct {
	RequestID  string
	Sequence   int64
	FromStatus string
	ToStatus   string
	ActorID    string
	Comment    string
	OccurredAt time.Time
}
