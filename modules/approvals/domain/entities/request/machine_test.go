package request_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
)

func pendingRequest(t *testing.T) *request.ApprovalRequest {
	t.Helper()
	dataset := uuid.New()
	req, err := request.New(request.FullDataAccess, uuid.New(), &dataset, "research", time.Now())
	require.NoError(t, err)
	return req
}

func TestApply_AdminApproves(t *testing.T) {
	req := pendingRequest(t)
	admin := request.Actor{ID: uuid.New(), Admin: true}
	now := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)

	tr, err := request.Apply(req, request.TriggerApprove, admin, "looks fine", now)
	require.NoError(t, err)
	require.Equal(t, request.StatusPending, tr.From)
	require.Equal(t, request.StatusApproved, tr.To)
	require.Equal(t, admin.ID, tr.ActorID)

	require.Equal(t, request.StatusApproved, req.Status)
	require.NotNil(t, req.AdminID)
	require.Equal(t, admin.ID, *req.AdminID)
	require.NotNil(t, req.AdminComments)
	require.Equal(t, "looks fine", *req.AdminComments)
	require.NotNil(t, req.ProcessedAt)
	require.Equal(t, now, *req.ProcessedAt)
}

func TestApply_AdminRejectsWithoutComment(t *testing.T) {
	req := pendingRequest(t)
	admin := request.Actor{ID: uuid.New(), Admin: true}

	_, err := request.Apply(req, request.TriggerReject, admin, "", time.Now())
	require.NoError(t, err)
	require.Equal(t, request.StatusRejected, req.Status)
	require.NotNil(t, req.AdminComments)
	require.Empty(t, *req.AdminComments)
}

func TestApply_DecidedRequestAlwaysCarriesAdminComments(t *testing.T) {
	// A decided request has both admin fields set even for an empty comment;
	// a canceled one has neither.
	req := pendingRequest(t)
	admin := request.Actor{ID: uuid.New(), Admin: true}
	_, err := request.Apply(req, request.TriggerApprove, admin, "", time.Now())
	require.NoError(t, err)
	require.NotNil(t, req.AdminID)
	require.NotNil(t, req.AdminComments)
	require.Empty(t, *req.AdminComments)

	canceled := pendingRequest(t)
	_, err = request.Apply(canceled, request.TriggerCancel, request.Actor{ID: canceled.RequesterID}, "", time.Now())
	require.NoError(t, err)
	require.Nil(t, canceled.AdminID)
	require.Nil(t, canceled.AdminComments)
}

func TestApply_NonAdminCannotDecide(t *testing.T) {
	for _, trigger := range []request.Trigger{request.TriggerApprove, request.TriggerReject} {
		req := pendingRequest(t)
		_, err := request.Apply(req, trigger, request.Actor{ID: uuid.New()}, "", time.Now())

		var authzErr *request.AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		require.Equal(t, request.StatusPending, req.Status)
	}
}

func TestApply_RequesterCancels(t *testing.T) {
	req := pendingRequest(t)
	_, err := request.Apply(req, request.TriggerCancel, request.Actor{ID: req.RequesterID}, "", time.Now())
	require.NoError(t, err)
	require.Equal(t, request.StatusCanceled, req.Status)
	require.Nil(t, req.AdminID)
}

func TestApply_StrangerCannotCancel(t *testing.T) {
	req := pendingRequest(t)
	_, err := request.Apply(req, request.TriggerCancel, request.Actor{ID: uuid.New(), Admin: true}, "", time.Now())

	var authzErr *request.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
}

func TestApply_TerminalStatesRejectAllTriggers(t *testing.T) {
	triggers := []request.Trigger{request.TriggerApprove, request.TriggerReject, request.TriggerCancel}
	for _, terminal := range []request.Status{request.StatusApproved, request.StatusRejected, request.StatusCanceled} {
		for _, trigger := range triggers {
			req := pendingRequest(t)
			req.Status = terminal

			_, err := request.Apply(req, trigger, request.Actor{ID: req.RequesterID, Admin: true}, "", time.Now())

			var guardErr *request.GuardError
			require.ErrorAs(t, err, &guardErr, "%s from %s must be guarded", trigger, terminal)
			require.Equal(t, terminal, req.Status)
		}
	}
}

func TestApply_GuardCheckedBeforeAuthorization(t *testing.T) {
	// A non-admin firing approve on an already canceled request must see the
	// guard failure, not the permission failure.
	req := pendingRequest(t)
	req.Status = request.StatusCanceled

	_, err := request.Apply(req, request.TriggerApprove, request.Actor{ID: uuid.New()}, "", time.Now())

	var guardErr *request.GuardError
	require.ErrorAs(t, err, &guardErr)
}

func TestCanFire(t *testing.T) {
	require.True(t, request.CanFire(request.StatusPending, request.TriggerApprove))
	require.True(t, request.CanFire(request.StatusPending, request.TriggerCancel))
	require.False(t, request.CanFire(request.StatusApproved, request.TriggerCancel))
	require.False(t, request.CanFire(request.StatusRejected, request.TriggerApprove))
}
