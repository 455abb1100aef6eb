package models

import "time"

type Dataset struct {
	ID          string
	FileName    string
	Checksum    string
	SizeBytes   int64
	RowCount    int64
	Description string
	Region      *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Metadata    []byte
	UploaderID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
