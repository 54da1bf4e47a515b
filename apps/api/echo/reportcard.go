package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/reportcard"
)

type reportCardApi struct {
	svc      *reportcard.Service
	validate *validator.Validate
}

func registerReportCardAPI(g *echo.Group, svc *reportcard.Service, validate *validator.Validate) {
	api := reportCardApi{svc: svc, validate: validate}

	rg := g.Group("/report-cards", roleMiddleware(canManageClasswork))
	rg.POST("/generate", api.generate)
}

// generate builds the report cards of a whole class and, when asked, emails them to the guardians.
func (api *reportCardApi) generate(ctx echo.Context) error {
	var data reportcard.GenerateRequest
	if err := bindBody(ctx, &data, "GenerateRequest"); err != nil {
		return err
	}
	branchID, err := getBranchScope(ctx).Resolve(data.BranchID)
	if err != nil {
		return err
	}
	data.BranchID = branchID
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	report, err := api.svc.GenerateForClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating report cards")
	}
	return ctx.JSON(http.StatusOK, report)
}
