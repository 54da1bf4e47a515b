package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/dashboard"
)

type dashboardApi struct {
	svc *dashboard.Service
}

func registerDashboardAPI(g *echo.Group, svc *dashboard.Service) {
	api := dashboardApi{svc: svc}

	dg := g.Group("/dashboard")
	dg.GET("/widgets", api.layout)
	dg.GET("/widgets/:name", api.widget)
}

func (api *dashboardApi) layout(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	layout, err := api.svc.Layout(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading dashboard layout")
	}
	return ctx.JSON(http.StatusOK, layout)
}

func (api *dashboardApi) widget(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data, err := api.svc.Widget(ctx.Request().Context(), ctx.Param("name"), usr, getBranchScope(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "loading widget")
	}
	return ctx.JSON(http.StatusOK, data)
}
