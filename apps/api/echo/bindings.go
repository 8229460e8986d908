package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/workdesk/core"
)

var orderingParam = "ordering"

// bindOrdering parses the `ordering` query param, e.g. "?ordering=is_complete,-due_date"
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	return core.ParseOrderings(ctx.QueryParam(orderingParam))
}

type CalendarResponse struct {
	URL string `json:"url"`
}
