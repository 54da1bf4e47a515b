package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}
	writePerms := roleMiddleware(canManageClasswork)

	ag := g.Group("/attendance", roleMiddleware(isStaff))
	ag.GET("", api.query)
	ag.POST("", api.create, writePerms)
	ag.DELETE("", api.destroyMultiple, writePerms)
	ag.POST("/mark", api.mark, writePerms)
	ag.GET("/stats", api.stats)
	ag.GET("/daily", api.daily)

	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, writePerms)
	dg.DELETE("", api.destroy, writePerms)
}

func (api *attendanceApi) bindFilter(ctx echo.Context) (*attendance.QueryFilter, error) {
	filter := &attendance.QueryFilter{
		BranchID:   getBranchScope(ctx).ID,
		StudentID:  ctx.QueryParam("student_id"),
		StudentIDs: queryList(ctx, "student_ids"),
		ClassName:  core.CleanString(ctx.QueryParam("class_name")),
		Statuses:   queryList(ctx, "status"),
	}
	err := echo.QueryParamsBinder(ctx).
		BindUnmarshaler("date_from", &filter.DateFrom).
		BindUnmarshaler("date_to", &filter.DateTo).
		BindError()
	if err != nil {
		return nil, err
	}
	return filter, nil
}

func (api *attendanceApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		r, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding attendance record by ID")
		}
		if !getBranchScope(ctx).Allows(r.BranchID) {
			return errHttpNotFound
		}
		ctx.Set("object", r)
		return next(ctx)
	}
}

func ctxRecord(ctx echo.Context) (attendance.Record, error) {
	r, ok := ctx.Get("object").(attendance.Record)
	if !ok {
		return attendance.Record{}, errors.New("attendance record not found in echo.Context")
	}
	return r, nil
}

// Handlers

func (api *attendanceApi) query(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}

	records, total, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return listResponse(ctx, records, total, page)
}

// create records the attendance of a single student.
func (api *attendanceApi) create(ctx echo.Context) error {
	var data NewAttendanceRecord
	if err := bindBody(ctx, &data, "NewAttendanceRecord"); err != nil {
		return err
	}
	ma := attendance.MarkAttendance{Date: data.Date, Entries: []attendance.MarkEntry{data.MarkEntry}}

	records, err := api.markAttendance(ctx, ma)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, records[0])
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkAttendance
	if err := bindBody(ctx, &data, "MarkAttendance"); err != nil {
		return err
	}

	records, err := api.markAttendance(ctx, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) markAttendance(ctx echo.Context, ma attendance.MarkAttendance) ([]attendance.Record, error) {
	if err := ma.Validate(api.validate); err != nil {
		return nil, err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context user")
	}
	records, err := api.svc.Mark(ctx.Request().Context(), ma, getBranchScope(ctx).ID, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "marking attendance")
	}
	return records, nil
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	r, err := ctxRecord(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	r, err := ctxRecord(ctx)
	if err != nil {
		return err
	}

	var data attendance.UpdateRecord
	if err := bindBody(ctx, &data, "UpdateRecord"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err = api.svc.Update(ctx.Request().Context(), r, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating attendance record")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	r, err := ctxRecord(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), r.ID); err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) destroyMultiple(ctx echo.Context) error {
	ids := queryList(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	reqCtx := ctx.Request().Context()
	scope := getBranchScope(ctx)
	for _, id := range ids {
		r, err := api.svc.GetByID(reqCtx, id)
		if err != nil {
			if errors.Cause(err) == attendance.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding attendance record by ID")
		}
		if !scope.Allows(r.BranchID) {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(reqCtx, ids...); err != nil {
		return errors.Wrap(err, "deleting attendance records")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) stats(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.Stats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing attendance stats")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) daily(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	days, err := api.svc.Daily(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing daily attendance")
	}
	return ctx.JSON(http.StatusOK, days)
}

// NewAttendanceRecord is the attendance of one student on one day.
type NewAttendanceRecord struct {
	Date core.Date `json:"date"`
	attendance.MarkEntry
}
