package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/masomo/feeledger/core/user"
)

// adminMiddleware lets through admins holding any of `roles` (any admin when empty).
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin && claims.hasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// feeManagerMiddleware guards structure-level operations: accountants may only collect & report.
func feeManagerMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.RoleAdmin, user.RoleAdminOwner)
}
