package request

import "github.com/google/uuid"

type CreatedEvent struct {
	Result ApprovalRequest
}

type ApprovedEvent struct {
	AdminID uuid.UUID
	Result  ApprovalRequest
}

type RejectedEvent struct {
	AdminID uuid.UUID
	Result  ApprovalRequest
}

type CanceledEvent struct {
	Result ApprovalRequest
}
