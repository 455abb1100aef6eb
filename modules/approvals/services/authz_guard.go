package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/quarry-data/quarry/pkg/authz"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/serrors"
)

const ApprovalsAuthzObject = "approvals.requests"

var (
	authorizeApprovalsFn = defaultAuthorizeApprovals
	isAdministratorFn    = defaultIsAdministrator
)

func authorizeApprovals(ctx context.Context, action string) error {
	return authorizeApprovalsFn(ctx, action)
}

func defaultAuthorizeApprovals(ctx context.Context, action string) error {
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		return serrors.NewError("AUTHZ_FORBIDDEN", "permission denied", "Authorization.PermissionDenied")
	}

	req := authz.NewRequest(
		authz.SubjectForActor(actorID),
		ApprovalsAuthzObject,
		authz.NormalizeAction(action),
	)
	return authz.Use().Authorize(ctx, req)
}

// isAdministrator consults the policy engine, never role claims from the
// transport layer.
func isAdministrator(ctx context.Context, actorID uuid.UUID) (bool, error) {
	return isAdministratorFn(ctx, actorID)
}

func defaultIsAdministrator(ctx context.Context, actorID uuid.UUID) (bool, error) {
	return authz.Use().IsAdministrator(ctx, actorID)
}
