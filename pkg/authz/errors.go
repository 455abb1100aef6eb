package authz

import (
	"fmt"

	"github.com/quarry-data/quarry/pkg/serrors"
)

var (
	ErrForbidden     = serrors.NewError("AUTHZ_FORBIDDEN", "permission denied", "Authorization.PermissionDenied")
	ErrInvalidConfig = serrors.NewError("AUTHZ_INVALID_CONFIG", "invalid authz configuration", "")
)

func forbiddenError(req Request) error {
	return fmt.Errorf("%w: subject=%s object=%s action=%s", ErrForbidden, req.Subject, req.Object, req.Action)
}
