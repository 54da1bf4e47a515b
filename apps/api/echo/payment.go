package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payment"
	"github.com/trezcool/shule/core/student"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type paymentApi struct {
	svc      *payment.Service
	students *student.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, svc *payment.Service, students *student.Service, validate *validator.Validate) {
	api := paymentApi{svc: svc, students: students, validate: validate}
	perms := roleMiddleware(canManagePayments)

	pg := g.Group("/payments", perms)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.DELETE("", api.destroyMultiple)
	pg.GET("/stats", api.stats)
	pg.GET("/export", api.export)

	dg := pg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/record", api.record)
	dg.POST("/cancel", api.cancel)

	g.GET("/fees/registration-payments", api.registrationPayments, perms)
}

// bindFilter reads the listing filters, confined to the branch scope.
// ok is false when the filter cannot match anything.
func (api *paymentApi) bindFilter(ctx echo.Context) (filter *payment.QueryFilter, ok bool, err error) {
	filter = &payment.QueryFilter{
		Search:    ctx.QueryParam("search"),
		BranchID:  getBranchScope(ctx).ID,
		StudentID: ctx.QueryParam("student_id"),
		FeeTypes:  queryList(ctx, "fee_type"),
		Statuses:  queryList(ctx, "status"),
		Method:    ctx.QueryParam("method"),
	}
	err = echo.QueryParamsBinder(ctx).
		BindUnmarshaler("due_from", &filter.DueFrom).
		BindUnmarshaler("due_to", &filter.DueTo).
		BindUnmarshaler("paid_from", &filter.PaidFrom).
		BindUnmarshaler("paid_to", &filter.PaidTo).
		BindError()
	if err != nil {
		return nil, false, err
	}
	filter.Clean()

	if class := ctx.QueryParam("class_name"); class != "" {
		ids, err := api.students.IDs(ctx.Request().Context(), &student.QueryFilter{BranchID: filter.BranchID, ClassName: class})
		if err != nil {
			return nil, false, errors.Wrap(err, "querying class students")
		}
		if len(ids) == 0 {
			return filter, false, nil
		}
		filter.StudentIDs = ids
	}
	return filter, true, nil
}

func (api *paymentApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding payment by ID")
		}
		if !getBranchScope(ctx).Allows(p.BranchID) {
			return errHttpNotFound
		}
		ctx.Set("object", p)
		return next(ctx)
	}
}

func ctxPayment(ctx echo.Context) (payment.Payment, error) {
	p, ok := ctx.Get("object").(payment.Payment)
	if !ok {
		return payment.Payment{}, errors.New("payment object not found in echo.Context")
	}
	return p, nil
}

// Handlers

func (api *paymentApi) query(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter, ok, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return listResponse(ctx, []payment.Payment{}, 0, page)
	}

	payments, total, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return listResponse(ctx, payments, total, page)
}

func (api *paymentApi) registrationPayments(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter, ok, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return listResponse(ctx, []payment.Payment{}, 0, page)
	}

	payments, total, err := api.svc.RegistrationPayments(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying registration payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return listResponse(ctx, payments, total, page)
}

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := bindBody(ctx, &data, "NewPayment"); err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate); err != nil {
		return err
	}

	st, err := api.students.GetByID(reqCtx, data.StudentID)
	if err == nil && !getBranchScope(ctx).Allows(st.BranchID) {
		return errHttpForbidden
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.Create(reqCtx, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating payment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) update(ctx echo.Context) error {
	p, err := ctxPayment(ctx)
	if err != nil {
		return err
	}

	var data payment.UpdatePayment
	if err := bindBody(ctx, &data, "UpdatePayment"); err != nil {
		return err
	}
	if err := data.Validate(p, api.validate); err != nil {
		return err
	}

	p, err = api.svc.Update(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) record(ctx echo.Context) error {
	p, err := ctxPayment(ctx)
	if err != nil {
		return err
	}

	var data payment.RecordPayment
	if err := bindBody(ctx, &data, "RecordPayment"); err != nil {
		return err
	}
	if err := data.Validate(p, api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err = api.svc.RecordPayment(ctx.Request().Context(), p, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) cancel(ctx echo.Context) error {
	p, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	p, err = api.svc.Cancel(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "cancelling payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	p, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), p.ID); err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *paymentApi) destroyMultiple(ctx echo.Context) error {
	ids := queryList(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	reqCtx := ctx.Request().Context()
	scope := getBranchScope(ctx)
	for _, id := range ids {
		p, err := api.svc.GetByID(reqCtx, id)
		if err != nil {
			if errors.Cause(err) == payment.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding payment by ID")
		}
		if !scope.Allows(p.BranchID) {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(reqCtx, ids...); err != nil {
		return errors.Wrap(err, "deleting payments")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *paymentApi) stats(ctx echo.Context) error {
	months := payment.DefaultStatsMonths
	if err := echo.QueryParamsBinder(ctx).Int("months", &months).BindError(); err != nil {
		return err
	}
	filter, ok, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.JSON(http.StatusOK, payment.Aggregate(nil, core.NowFunc(), months))
	}

	stats, err := api.svc.Stats(ctx.Request().Context(), filter, months)
	if err != nil {
		return errors.Wrap(err, "computing payment stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *paymentApi) export(ctx echo.Context) error {
	filter, ok, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		filter.StudentIDs = []string{uuid.Nil.String()} // matches nothing
	}

	var buf bytes.Buffer
	if err := api.svc.ExportXLSX(ctx.Request().Context(), &buf, filter, bindOrdering(ctx)); err != nil {
		return errors.Wrap(err, "exporting payments")
	}
	return attachment(ctx, payment.ExportFilename(), xlsxContentType, buf.Bytes())
}

// attachment sends b as a downloadable file.
func attachment(ctx echo.Context, filename, contentType string, b []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentType, b)
}
