package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core/livesync"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/user"
)

type messageApi struct {
	svc      message.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := messageApi{
		svc:      deps.MsgSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	mg := g.Group("/messages", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create)
	mg.DELETE("/:id", api.destroy)
}

// query lists the direct conversation with `?with=<id>`, the broadcast chat otherwise.
func (api *messageApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	c := livesync.Broadcast()
	if with := ctx.QueryParam("with"); with != "" {
		if c, err = livesync.Direct(actor.ID, with); err != nil {
			return err
		}
	}

	msgs, err := api.svc.Query(ctx.Request().Context(), actor, c)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data message.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messageApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting message")
	}
	return ctx.NoContent(http.StatusNoContent)
}
