package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/reportcard"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type studentApi struct {
	svc         *student.Service
	reportCards *reportcard.Service
	discipline  *discipline.Service
	attendance  *attendance.Service
	validate    *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	svc *student.Service,
	reportCards *reportcard.Service,
	disc *discipline.Service,
	att *attendance.Service,
	validate *validator.Validate,
) {
	api := studentApi{
		svc:         svc,
		reportCards: reportCards,
		discipline:  disc,
		attendance:  att,
		validate:    validate,
	}

	sg := g.Group("/students")
	sg.GET("", api.query, roleMiddleware(isStaff))
	sg.POST("", api.create, roleMiddleware(isSchoolAdmin))
	sg.DELETE("", api.destroyMultiple, roleMiddleware(isSchoolAdmin))
	sg.POST("/import", api.importXLSX, roleMiddleware(isSchoolAdmin))

	// detail endpoints
	dg := sg.Group("/:id", studentAccessMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(isSchoolAdmin))
	dg.DELETE("", api.destroy, roleMiddleware(isSchoolAdmin))
	dg.GET("/report-card", api.reportCard)
	dg.GET("/discipline", api.disciplineSummary)
	dg.GET("/attendance", api.attendanceSummary)
}

// canSeeStudent reports whether usr may read the records of st: staff within the branch scope,
// or the student & guardian accounts linked to st.
func canSeeStudent(ctx echo.Context, usr user.User, st student.Student) bool {
	if usr.IsStaff() {
		return getBranchScope(ctx).Allows(st.BranchID)
	}
	return usr.ID != "" && (st.UserID == usr.ID || st.GuardianUserID == usr.ID)
}

// studentAccessMiddleware loads the `:id` student into the context when the context user can see them.
func studentAccessMiddleware(svc *student.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			st, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding student by ID")
			}
			if !canSeeStudent(ctx, usr, st) {
				return errHttpNotFound
			}
			ctx.Set("object", st)
			return next(ctx)
		}
	}
}

func ctxStudent(ctx echo.Context) (student.Student, error) {
	st, ok := ctx.Get("object").(student.Student)
	if !ok {
		return student.Student{}, errors.New("student object not found in echo.Context")
	}
	return st, nil
}

// scopedStudentIDs restricts a listing to the students visible to a non-staff user.
// ok is false when nothing can be visible.
func scopedStudentIDs(ctx echo.Context, svc *student.Service) (ids []string, ok bool, err error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "getting context user")
	}
	if usr.IsStaff() {
		return nil, true, nil
	}
	students, err := linkedStudents(ctx, svc, usr)
	if err != nil {
		return nil, false, err
	}
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids, len(ids) > 0, nil
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter := &student.QueryFilter{
		Search:    ctx.QueryParam("search"),
		BranchID:  getBranchScope(ctx).ID,
		ClassName: ctx.QueryParam("class_name"),
		Statuses:  queryList(ctx, "status"),
	}
	filter.Clean()

	students, total, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return listResponse(ctx, students, total, page)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := bindBody(ctx, &data, "NewStudent"); err != nil {
		return err
	}
	branchID, err := getBranchScope(ctx).Resolve(data.BranchID)
	if err != nil {
		return err
	}
	data.BranchID = branchID

	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}
	st, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentApi) importXLSX(ctx echo.Context) error {
	branchID, err := getBranchScope(ctx).Resolve(ctx.FormValue(branchParam))
	if err != nil {
		return err
	}
	if branchID == "" {
		return core.NewFieldValidationError(branchParam, "this field is required")
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldValidationError("file", "an .xlsx file is required")
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	report, err := api.svc.ImportXLSX(ctx.Request().Context(), branchID, file)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := bindBody(ctx, &data, "UpdateStudent"); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), st, api.validate, api.svc); err != nil {
		return err
	}

	st, err = api.svc.Update(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), st.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	ids := queryList(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	reqCtx := ctx.Request().Context()
	students, err := api.svc.Map(reqCtx, ids...)
	if err != nil {
		return errors.Wrap(err, "finding students")
	}
	scope := getBranchScope(ctx)
	for _, st := range students {
		if !scope.Allows(st.BranchID) {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(reqCtx, ids...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) reportCard(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	var period reportcard.Period
	if err := bindBody(ctx, &period, "Period"); err != nil {
		return err
	}
	if err := period.Validate(api.validate); err != nil {
		return err
	}

	card, err := api.reportCards.ForStudent(ctx.Request().Context(), st, period)
	if err != nil {
		return errors.Wrap(err, "building report card")
	}
	return ctx.JSON(http.StatusOK, card)
}

func (api *studentApi) disciplineSummary(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	summary, err := api.discipline.StudentSummary(ctx.Request().Context(), st.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing discipline")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *studentApi) attendanceSummary(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	var from, to core.Date
	err = echo.QueryParamsBinder(ctx).
		BindUnmarshaler("date_from", &from).
		BindUnmarshaler("date_to", &to).
		BindError()
	if err != nil {
		return err
	}

	summary, err := api.attendance.StudentSummary(ctx.Request().Context(), st.ID, from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}
