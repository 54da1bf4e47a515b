package echoapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/preference"
)

// preference values beyond this are rejected by the Service anyway
const maxPreferenceBody = 1 << 20

type preferenceApi struct {
	svc      *preference.Service
	validate *validator.Validate
}

func registerPreferenceAPI(g *echo.Group, svc *preference.Service, validate *validator.Validate) {
	api := preferenceApi{svc: svc, validate: validate}

	pg := g.Group("/preferences")
	pg.GET("", api.query)
	pg.GET("/:key", api.retrieve)
	pg.PUT("/:key", api.set)
	pg.DELETE("/:key", api.destroy)

	sg := g.Group("/settings")
	sg.GET("/system", api.systemSettings)
	sg.PUT("/system", api.setSystemSettings, adminMiddleware())
}

func (api *preferenceApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	prefs, err := api.svc.Query(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying preferences")
	}
	if prefs == nil {
		prefs = []preference.Preference{}
	}
	return ctx.JSON(http.StatusOK, prefs)
}

// retrieve answers the stored value; the user's own dashboard layout falls back to the role defaults.
func (api *preferenceApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	key := ctx.Param("key")
	reqCtx := ctx.Request().Context()

	if role := usr.DashboardRole(); key == preference.DashboardKey(role) {
		prefs, err := api.svc.Dashboard(reqCtx, usr.ID, role)
		if err != nil {
			return errors.Wrap(err, "loading dashboard preferences")
		}
		raw, err := json.Marshal(prefs)
		if err != nil {
			return errors.Wrap(err, "encoding dashboard preferences")
		}
		return ctx.JSON(http.StatusOK, preference.Preference{Key: key, Value: raw})
	}

	val, err := api.svc.Get(reqCtx, usr.ID, key)
	if err != nil {
		return errors.Wrap(err, "getting preference")
	}
	return ctx.JSON(http.StatusOK, preference.Preference{Key: key, Value: val})
}

// set stores the raw JSON body under `:key`.
func (api *preferenceApi) set(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxPreferenceBody))
	if err != nil {
		return errors.Wrap(err, "reading body")
	}

	key := ctx.Param("key")
	val, err := api.svc.Set(ctx.Request().Context(), usr.ID, key, body)
	if err != nil {
		return errors.Wrap(err, "setting preference")
	}
	return ctx.JSON(http.StatusOK, preference.Preference{Key: key, Value: val})
}

func (api *preferenceApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr.ID, ctx.Param("key")); err != nil {
		return errors.Wrap(err, "deleting preference")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *preferenceApi) systemSettings(ctx echo.Context) error {
	settings, err := api.svc.SystemSettings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading system settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *preferenceApi) setSystemSettings(ctx echo.Context) error {
	var data preference.SystemSettings
	if err := bindBody(ctx, &data, "SystemSettings"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	settings, err := api.svc.SetSystemSettings(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving system settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}
