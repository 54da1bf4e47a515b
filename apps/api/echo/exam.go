package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

type examApi struct {
	svc      *exam.Service
	validate *validator.Validate
}

func registerExamAPI(g *echo.Group, svc *exam.Service, validate *validator.Validate) {
	api := examApi{svc: svc, validate: validate}
	writePerms := roleMiddleware(canManageClasswork)

	eg := g.Group("/exams", roleMiddleware(isStaff))
	eg.GET("", api.query)
	eg.POST("", api.create, writePerms)

	dg := eg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, writePerms)
	dg.DELETE("", api.destroy, writePerms)
	dg.POST("/publish", api.publish, writePerms)
	dg.GET("/results", api.results)
	dg.PUT("/results", api.saveResults, writePerms)
	dg.DELETE("/results/:resultId", api.destroyResult, writePerms)
	dg.GET("/stats", api.stats)
	dg.POST("/import", api.importCSV, writePerms)
	dg.GET("/export", api.export)
}

func (api *examApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		e, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding exam by ID")
		}
		if !getBranchScope(ctx).Allows(e.BranchID) {
			return errHttpNotFound
		}
		ctx.Set("object", e)
		return next(ctx)
	}
}

func ctxExam(ctx echo.Context) (exam.Exam, error) {
	e, ok := ctx.Get("object").(exam.Exam)
	if !ok {
		return exam.Exam{}, errors.New("exam object not found in echo.Context")
	}
	return e, nil
}

// Handlers

func (api *examApi) query(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter := &exam.QueryFilter{
		Search:       ctx.QueryParam("search"),
		BranchID:     getBranchScope(ctx).ID,
		ClassName:    ctx.QueryParam("class_name"),
		Subject:      ctx.QueryParam("subject"),
		Term:         ctx.QueryParam("term"),
		AcademicYear: ctx.QueryParam("academic_year"),
		Statuses:     queryList(ctx, "status"),
	}
	filter.Clean()

	exams, total, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return listResponse(ctx, exams, total, page)
}

func (api *examApi) create(ctx echo.Context) error {
	var data exam.NewExam
	if err := bindBody(ctx, &data, "NewExam"); err != nil {
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

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) update(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err := bindBody(ctx, &data, "UpdateExam"); err != nil {
		return err
	}
	if err := data.Validate(e, api.validate); err != nil {
		return err
	}

	e, err = api.svc.Update(ctx.Request().Context(), e, data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), e.ID); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) publish(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	e, err = api.svc.Publish(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "publishing exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) results(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.Results(ctx.Request().Context(), e.ID)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []exam.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *examApi) saveResults(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var data exam.SaveResults
	if err := bindBody(ctx, &data, "SaveResults"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	results, err := api.svc.SaveResults(ctx.Request().Context(), e, data.Results)
	if err != nil {
		return errors.Wrap(err, "saving results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *examApi) destroyResult(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteResult(ctx.Request().Context(), e, ctx.Param("resultId")); err != nil {
		return errors.Wrap(err, "deleting result")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) stats(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), e)
	if err != nil {
		return errors.Wrap(err, "computing exam stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *examApi) importCSV(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldValidationError("file", "a .csv file is required")
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	report, err := api.svc.ImportCSV(ctx.Request().Context(), e, file)
	if err != nil {
		return errors.Wrap(err, "importing results")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *examApi) export(ctx echo.Context) error {
	e, err := ctxExam(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	reqCtx := ctx.Request().Context()
	switch format := ctx.QueryParam("format"); format {
	case "", "csv":
		if err := api.svc.ExportCSV(reqCtx, e, &buf); err != nil {
			return errors.Wrap(err, "exporting results")
		}
		return attachment(ctx, exam.ExportFilename(e, "csv"), "text/csv", buf.Bytes())
	case "xlsx":
		if err := api.svc.ExportXLSX(reqCtx, e, &buf); err != nil {
			return errors.Wrap(err, "exporting results")
		}
		return attachment(ctx, exam.ExportFilename(e, "xlsx"), xlsxContentType, buf.Bytes())
	default:
		return core.NewFieldValidationError("format", "format must be csv or xlsx")
	}
}
