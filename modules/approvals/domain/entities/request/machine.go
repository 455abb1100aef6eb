package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trigger names the state-machine inputs. Approve and Reject are admin
// decisions; Cancel is the requester withdrawing their own case.
type Trigger string

const (
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	TriggerCancel  Trigger = "cancel"

	// TriggerAttachDataset is not a status transition; it names the dataset
	// attachment step in guard errors when a terminal request is touched.
	TriggerAttachDataset Trigger = "attach_dataset"
)

// Actor is the principal attempting a transition, with its admin standing
// already resolved by the caller. The machine itself stays free of any
// policy-engine dependency.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// GuardError reports that the transition is not legal from the current
// status, regardless of who asks.
type GuardError struct {
	Status  Status
	Trigger Trigger
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %q", e.Trigger, e.Status)
}

// AuthorizationError reports that the transition exists but this actor may
// not fire it.
type AuthorizationError struct {
	ActorID uuid.UUID
	Trigger Trigger
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s is not permitted to %s this request", e.ActorID, e.Trigger)
}

var transitions = map[Status]map[Trigger]Status{
	StatusPending: {
		TriggerApprove: StatusApproved,
		TriggerReject:  StatusRejected,
		TriggerCancel:  StatusCanceled,
	},
}

// CanFire reports whether trigger is legal from status. It ignores actor
// permissions; use Apply for the full check.
func CanFire(status Status, trigger Trigger) bool {
	_, ok := transitions[status][trigger]
	return ok
}

// AppliedTransition records one successful state change, ready to be turned
// into a ledger entry.
type AppliedTransition struct {
	From       Status
	To         Status
	Trigger    Trigger
	ActorID    uuid.UUID
	Comment    string
	OccurredAt time.Time
}

// Apply fires trigger against req in place and returns the transition that
// occurred. State legality is checked before actor permissions, so a
// transition from a terminal state always yields a GuardError, even for an
// actor who would otherwise be denied.
func Apply(req *ApprovalRequest, trigger Trigger, actor Actor, comment string, now time.Time) (*AppliedTransition, error) {
	next, ok := transitions[req.Status][trigger]
	if !ok {
		return nil, &GuardError{Status: req.Status, Trigger: trigger}
	}

	switch trigger {
	case TriggerApprove, TriggerReject:
		if !actor.Admin {
			return nil, &AuthorizationError{ActorID: actor.ID, Trigger: trigger}
		}
	case TriggerCancel:
		if actor.ID != req.RequesterID {
			return nil, &AuthorizationError{ActorID: actor.ID, Trigger: trigger}
		}
	}

	occurredAt := now.UTC()
	from := req.Status
	req.Status = next
	req.ProcessedAt = &occurredAt
	switch trigger {
	case TriggerApprove, TriggerReject:
		adminID := actor.ID
		req.AdminID = &adminID
		// Set even when empty: a decided request always carries the admin's
		// comment field, a pending or canceled one never does.
		c := comment
		req.AdminComments = &c
	}

	return &AppliedTransition{
		From:       from,
		To:         next,
		Trigger:    trigger,
		ActorID:    actor.ID,
		Comment:    comment,
		OccurredAt: occurredAt,
	}, nil
}
