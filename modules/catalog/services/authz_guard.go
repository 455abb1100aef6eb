package services

import (
	"context"

	"github.com/quarry-data/quarry/pkg/authz"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/serrors"
)

const CatalogAuthzObject = "catalog.datasets"

var authorizeCatalogFn = defaultAuthorizeCatalog

func authorizeCatalog(ctx context.Context, action string) error {
	return authorizeCatalogFn(ctx, action)
}

func defaultAuthorizeCatalog(ctx context.Context, action string) error {
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		return serrors.NewError("AUTHZ_FORBIDDEN", "permission denied", "Authorization.PermissionDenied")
	}

	req := authz.NewRequest(
		authz.SubjectForActor(actorID),
		CatalogAuthzObject,
		authz.NormalizeAction(action),
	)
	return authz.Use().Authorize(ctx, req)
}
