package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/user"
)

// adminMiddleware lets through users whose stored role is admin.
// The token's role claim is not trusted: any lookup failure is a refusal.
func adminMiddleware(svc user.Service, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				if herr, ok := errors.Cause(err).(*echo.HTTPError); !ok || herr != errUnauthorized {
					logger.Warn(fmt.Sprintf("admin check failed: %v", err), err)
				}
				return errHttpForbidden
			}
			if !usr.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
