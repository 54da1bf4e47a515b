package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/student"
)

// resource wires the CRUD endpoints of one kind of disciplinary record.
// T is the record, N its creation payload & U its update payload.
type resource[T any, N any, U any] struct {
	name       string
	idOf       func(T) string
	branchOf   func(T) string
	validateN  func(*N) error
	validateU  func(T, *U) error
	create     func(ctx context.Context, n N, branchID, by string) (T, error)
	query      func(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]T, int, error)
	get        func(ctx context.Context, id string) (T, error)
	update     func(ctx context.Context, orig T, u U) (T, error)
	delete     func(ctx context.Context, id string) error
	bindFilter func(ctx echo.Context) (*discipline.QueryFilter, bool, error)
}

func (res resource[T, N, U]) register(g *echo.Group, path string, writePerms echo.MiddlewareFunc) {
	rg := g.Group(path, roleMiddleware(isStaff))
	rg.GET("", res.list)
	rg.POST("", res.createHandler, writePerms)

	dg := rg.Group("/:id", res.objectMiddleware)
	dg.GET("", res.retrieve)
	dg.PUT("", res.updateHandler, writePerms)
	dg.DELETE("", res.destroy, roleMiddleware(canManageDiscipline))
}

func (res resource[T, N, U]) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		obj, err := res.get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrapf(err, "finding %s by ID", res.name)
		}
		if !getBranchScope(ctx).Allows(res.branchOf(obj)) {
			return errHttpNotFound
		}
		ctx.Set("object", obj)
		return next(ctx)
	}
}

func (res resource[T, N, U]) object(ctx echo.Context) (T, error) {
	obj, ok := ctx.Get("object").(T)
	if !ok {
		return obj, errors.Errorf("%s object not found in echo.Context", res.name)
	}
	return obj, nil
}

func (res resource[T, N, U]) list(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter, ok, err := res.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return listResponse(ctx, []T{}, 0, page)
	}

	objs, total, err := res.query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrapf(err, "querying %ss", res.name)
	}
	if objs == nil {
		objs = []T{}
	}
	return listResponse(ctx, objs, total, page)
}

func (res resource[T, N, U]) createHandler(ctx echo.Context) error {
	var data N
	if err := bindBody(ctx, &data, "new "+res.name); err != nil {
		return err
	}
	if err := res.validateN(&data); err != nil {
		return err
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	obj, err := res.create(ctx.Request().Context(), data, getBranchScope(ctx).ID, usr.ID)
	if err != nil {
		return errors.Wrapf(err, "creating %s", res.name)
	}
	return ctx.JSON(http.StatusCreated, obj)
}

func (res resource[T, N, U]) retrieve(ctx echo.Context) error {
	obj, err := res.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (res resource[T, N, U]) updateHandler(ctx echo.Context) error {
	obj, err := res.object(ctx)
	if err != nil {
		return err
	}

	var data U
	if err := bindBody(ctx, &data, "updated "+res.name); err != nil {
		return err
	}
	if err := res.validateU(obj, &data); err != nil {
		return err
	}

	obj, err = res.update(ctx.Request().Context(), obj, data)
	if err != nil {
		return errors.Wrapf(err, "updating %s", res.name)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (res resource[T, N, U]) destroy(ctx echo.Context) error {
	obj, err := res.object(ctx)
	if err != nil {
		return err
	}
	if err := res.delete(ctx.Request().Context(), res.idOf(obj)); err != nil {
		return errors.Wrapf(err, "deleting %s", res.name)
	}
	return ctx.NoContent(http.StatusNoContent)
}

type disciplineApi struct {
	svc      *discipline.Service
	students *student.Service
	validate *validator.Validate
}

func registerDisciplineAPI(g *echo.Group, svc *discipline.Service, students *student.Service, validate *validator.Validate) {
	api := disciplineApi{svc: svc, students: students, validate: validate}
	recordPerms := roleMiddleware(canRecordBehavior)
	managePerms := roleMiddleware(canManageDiscipline)

	resource[discipline.Incident, discipline.NewIncident, discipline.UpdateIncident]{
		name:      "incident",
		idOf:      func(i discipline.Incident) string { return i.ID },
		branchOf:  func(i discipline.Incident) string { return i.BranchID },
		validateN: func(n *discipline.NewIncident) error { return n.Validate(validate) },
		validateU: func(_ discipline.Incident, u *discipline.UpdateIncident) error {
			return u.Validate(validate)
		},
		create:     svc.CreateIncident,
		query:      svc.QueryIncidents,
		get:        svc.GetIncident,
		update:     svc.UpdateIncident,
		delete:     svc.DeleteIncident,
		bindFilter: api.bindFilter,
	}.register(g, "/incidents", recordPerms)

	resource[discipline.BehaviorPoint, discipline.NewBehaviorPoint, discipline.UpdateBehaviorPoint]{
		name:      "behavior point",
		idOf:      func(bp discipline.BehaviorPoint) string { return bp.ID },
		branchOf:  func(bp discipline.BehaviorPoint) string { return bp.BranchID },
		validateN: func(n *discipline.NewBehaviorPoint) error { return n.Validate(validate) },
		validateU: func(_ discipline.BehaviorPoint, u *discipline.UpdateBehaviorPoint) error {
			return u.Validate(validate)
		},
		create:     svc.CreatePoint,
		query:      svc.QueryPoints,
		get:        svc.GetPoint,
		update:     svc.UpdatePoint,
		delete:     svc.DeletePoint,
		bindFilter: api.bindFilter,
	}.register(g, "/behavior-points", recordPerms)

	resource[discipline.Reward, discipline.NewReward, discipline.UpdateReward]{
		name:      "reward",
		idOf:      func(rw discipline.Reward) string { return rw.ID },
		branchOf:  func(rw discipline.Reward) string { return rw.BranchID },
		validateN: func(n *discipline.NewReward) error { return n.Validate(validate) },
		validateU: func(_ discipline.Reward, u *discipline.UpdateReward) error {
			return u.Validate(validate)
		},
		create:     svc.CreateReward,
		query:      svc.QueryRewards,
		get:        svc.GetReward,
		update:     svc.UpdateReward,
		delete:     svc.DeleteReward,
		bindFilter: api.bindFilter,
	}.register(g, "/rewards", managePerms)

	resource[discipline.Contract, discipline.NewContract, discipline.UpdateContract]{
		name:      "contract",
		idOf:      func(c discipline.Contract) string { return c.ID },
		branchOf:  func(c discipline.Contract) string { return c.BranchID },
		validateN: func(n *discipline.NewContract) error { return n.Validate(validate) },
		validateU: func(orig discipline.Contract, u *discipline.UpdateContract) error {
			return u.Validate(orig, validate)
		},
		create:     svc.CreateContract,
		query:      svc.QueryContracts,
		get:        svc.GetContract,
		update:     svc.UpdateContract,
		delete:     svc.DeleteContract,
		bindFilter: api.bindFilter,
	}.register(g, "/contracts", managePerms)

	resource[discipline.CounselingSession, discipline.NewSession, discipline.UpdateSession]{
		name:      "counseling session",
		idOf:      func(s discipline.CounselingSession) string { return s.ID },
		branchOf:  func(s discipline.CounselingSession) string { return s.BranchID },
		validateN: func(n *discipline.NewSession) error { return n.Validate(validate) },
		validateU: func(_ discipline.CounselingSession, u *discipline.UpdateSession) error {
			return u.Validate(validate)
		},
		create:     svc.CreateSession,
		query:      svc.QuerySessions,
		get:        svc.GetSession,
		update:     svc.UpdateSession,
		delete:     svc.DeleteSession,
		bindFilter: api.bindFilter,
	}.register(g, "/counseling-sessions", managePerms)

	g.GET("/discipline/stats", api.stats, roleMiddleware(isStaff))
}

// bindFilter reads the filters shared by the disciplinary listings; `class_name` narrows them to the
// class students. ok is false when the filter cannot match anything.
func (api *disciplineApi) bindFilter(ctx echo.Context) (*discipline.QueryFilter, bool, error) {
	filter := &discipline.QueryFilter{
		BranchID:    getBranchScope(ctx).ID,
		StudentID:   ctx.QueryParam("student_id"),
		Statuses:    queryList(ctx, "status"),
		Severities:  queryList(ctx, "severity"),
		Category:    ctx.QueryParam("category"),
		Type:        ctx.QueryParam("type"),
		CounselorID: ctx.QueryParam("counselor_id"),
	}
	err := echo.QueryParamsBinder(ctx).
		BindUnmarshaler("date_from", &filter.DateFrom).
		BindUnmarshaler("date_to", &filter.DateTo).
		BindError()
	if err != nil {
		return nil, false, err
	}
	filter.Clean()

	if class := core.CleanString(ctx.QueryParam("class_name")); class != "" {
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

func (api *disciplineApi) stats(ctx echo.Context) error {
	filter, ok, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		filter.StudentIDs = []string{uuid.Nil.String()} // matches nothing
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing discipline stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
