package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/branch"
)

type branchApi struct {
	svc      *branch.Service
	validate *validator.Validate
}

func registerBranchAPI(g *echo.Group, svc *branch.Service, validate *validator.Validate) {
	api := branchApi{svc: svc, validate: validate}

	bg := g.Group("/branches", roleMiddleware(isStaff))
	bg.GET("", api.query)
	bg.POST("", api.create, roleMiddleware(isSchoolAdmin))
	bg.GET("/:id", api.retrieve)
	bg.PUT("/:id", api.update, roleMiddleware(isSchoolAdmin))
	bg.DELETE("/:id", api.destroy, roleMiddleware(isSchoolAdmin))
}

func (api *branchApi) query(ctx echo.Context) error {
	filter := &branch.QueryFilter{Search: ctx.QueryParam("search")}
	var err error
	if filter.IsActive, err = queryBool(ctx, "is_active"); err != nil {
		return err
	}
	filter.Clean()

	branches, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}

	// branch users only see their own branch
	scope := getBranchScope(ctx)
	out := make([]branch.Branch, 0, len(branches))
	for _, br := range branches {
		if scope.Allows(br.ID) {
			out = append(out, br)
		}
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *branchApi) create(ctx echo.Context) error {
	if getBranchScope(ctx).Confined {
		return errHttpForbidden
	}

	var data branch.NewBranch
	if err := bindBody(ctx, &data, "NewBranch"); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	br, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating branch")
	}
	return ctx.JSON(http.StatusCreated, br)
}

func (api *branchApi) get(ctx echo.Context) (branch.Branch, error) {
	id := ctx.Param("id")
	if !getBranchScope(ctx).Allows(id) {
		return branch.Branch{}, errHttpNotFound
	}
	br, err := api.svc.Get(ctx.Request().Context(), id)
	return br, errors.Wrap(err, "getting branch")
}

func (api *branchApi) retrieve(ctx echo.Context) error {
	br, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, br)
}

func (api *branchApi) update(ctx echo.Context) error {
	br, err := api.get(ctx)
	if err != nil {
		return err
	}

	var data branch.UpdateBranch
	if err := bindBody(ctx, &data, "UpdateBranch"); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), br, api.validate, api.svc); err != nil {
		return err
	}

	br, err = api.svc.Update(ctx.Request().Context(), br, data)
	if err != nil {
		return errors.Wrap(err, "updating branch")
	}
	return ctx.JSON(http.StatusOK, br)
}

func (api *branchApi) destroy(ctx echo.Context) error {
	if getBranchScope(ctx).Confined {
		return errHttpForbidden
	}
	br, err := api.get(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), br.ID); err != nil {
		return errors.Wrap(err, "deleting branch")
	}
	return ctx.NoContent(http.StatusNoContent)
}
