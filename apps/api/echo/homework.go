package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type homeworkApi struct {
	svc      *homework.Service
	students *student.Service
	validate *validator.Validate
}

func registerHomeworkAPI(g *echo.Group, svc *homework.Service, students *student.Service, validate *validator.Validate) {
	api := homeworkApi{svc: svc, students: students, validate: validate}
	writePerms := roleMiddleware(canManageClasswork)

	hg := g.Group("/homework")
	hg.GET("", api.query, roleMiddleware(isStaff))
	hg.POST("", api.create, writePerms)
	hg.GET("/stats/teacher/grading", api.gradingStats, writePerms)
	hg.PUT("/submissions/:id/grade", api.grade, writePerms)

	dg := hg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, writePerms)
	dg.DELETE("", api.destroy, writePerms)
	dg.GET("/submissions", api.submissions)
	dg.POST("/submissions", api.submit)
}

// objectMiddleware loads the `:id` homework for staff of its branch, and for the students
// (or their guardians) of its class.
func (api *homeworkApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		hw, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding homework by ID")
		}
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		visible := usr.IsStaff() && getBranchScope(ctx).Allows(hw.BranchID)
		if !usr.IsStaff() {
			linked, err := linkedStudents(ctx, api.students, usr)
			if err != nil {
				return err
			}
			for _, st := range linked {
				if st.BranchID == hw.BranchID && st.ClassName == hw.ClassName {
					visible = true
					break
				}
			}
		}
		if !visible {
			return errHttpNotFound
		}
		ctx.Set("object", hw)
		return next(ctx)
	}
}

func ctxHomework(ctx echo.Context) (homework.Homework, error) {
	hw, ok := ctx.Get("object").(homework.Homework)
	if !ok {
		return homework.Homework{}, errors.New("homework object not found in echo.Context")
	}
	return hw, nil
}

// Handlers

func (api *homeworkApi) query(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter := &homework.QueryFilter{
		Search:    ctx.QueryParam("search"),
		BranchID:  getBranchScope(ctx).ID,
		TeacherID: ctx.QueryParam("teacher_id"),
		ClassName: ctx.QueryParam("class_name"),
		Subject:   ctx.QueryParam("subject"),
	}
	err = echo.QueryParamsBinder(ctx).
		BindUnmarshaler("due_from", &filter.DueFrom).
		BindUnmarshaler("due_to", &filter.DueTo).
		BindError()
	if err != nil {
		return err
	}
	filter.Clean()

	hws, total, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying homework")
	}
	if hws == nil {
		hws = []homework.Homework{}
	}
	return listResponse(ctx, hws, total, page)
}

func (api *homeworkApi) create(ctx echo.Context) error {
	var data homework.NewHomework
	if err := bindBody(ctx, &data, "NewHomework"); err != nil {
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
	hw, err := api.svc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating homework")
	}
	return ctx.JSON(http.StatusCreated, hw)
}

func (api *homeworkApi) retrieve(ctx echo.Context) error {
	hw, err := ctxHomework(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, hw)
}

func (api *homeworkApi) update(ctx echo.Context) error {
	hw, err := ctxHomework(ctx)
	if err != nil {
		return err
	}

	var data homework.UpdateHomework
	if err := bindBody(ctx, &data, "UpdateHomework"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	hw, err = api.svc.Update(ctx.Request().Context(), hw, data)
	if err != nil {
		return errors.Wrap(err, "updating homework")
	}
	return ctx.JSON(http.StatusOK, hw)
}

func (api *homeworkApi) destroy(ctx echo.Context) error {
	hw, err := ctxHomework(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), hw.ID); err != nil {
		return errors.Wrap(err, "deleting homework")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *homeworkApi) submissions(ctx echo.Context) error {
	hw, err := ctxHomework(ctx)
	if err != nil {
		return err
	}
	filter := homework.SubmissionFilter{HomeworkIDs: []string{hw.ID}}
	if filter.Graded, err = queryBool(ctx, "graded"); err != nil {
		return err
	}

	ids, ok, err := scopedStudentIDs(ctx, api.students)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.JSON(http.StatusOK, []homework.Submission{})
	}
	filter.StudentIDs = ids

	subs, err := api.svc.QuerySubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []homework.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

// submit is open to teachers, and to students for their own work.
func (api *homeworkApi) submit(ctx echo.Context) error {
	hw, err := ctxHomework(ctx)
	if err != nil {
		return err
	}

	var data homework.NewSubmission
	if err := bindBody(ctx, &data, "NewSubmission"); err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !canManageClasswork(usr) {
		if !usr.IsStudent() {
			return errHttpForbidden
		}
		if err := api.checkOwnWork(ctx, usr, &data); err != nil {
			return err
		}
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Submit(ctx.Request().Context(), hw, data)
	if err != nil {
		return errors.Wrap(err, "submitting homework")
	}
	return ctx.JSON(http.StatusCreated, s)
}

// checkOwnWork ties a student's submission to their own student record.
func (api *homeworkApi) checkOwnWork(ctx echo.Context, usr user.User, data *homework.NewSubmission) error {
	own, err := api.students.All(ctx.Request().Context(), &student.QueryFilter{UserID: usr.ID})
	if err != nil {
		return errors.Wrap(err, "querying own student record")
	}
	if len(own) == 0 {
		return errHttpForbidden
	}
	if data.StudentID == "" {
		data.StudentID = own[0].ID
		return nil
	}
	for _, st := range own {
		if st.ID == data.StudentID {
			return nil
		}
	}
	return errHttpForbidden
}

func (api *homeworkApi) grade(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	s, err := api.svc.GetSubmission(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding submission by ID")
	}
	hw, err := api.svc.GetByID(reqCtx, s.HomeworkID)
	if err != nil {
		return errors.Wrap(err, "finding homework by ID")
	}
	if !getBranchScope(ctx).Allows(hw.BranchID) {
		return errHttpNotFound
	}

	var data homework.GradeSubmission
	if err := bindBody(ctx, &data, "GradeSubmission"); err != nil {
		return err
	}
	if err := data.Validate(hw, api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	s, err = api.svc.Grade(reqCtx, s, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, s)
}

// gradingStats reports on the context user's homework; admins may ask about any `teacher_id`.
func (api *homeworkApi) gradingStats(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	teacherID := usr.ID
	if id := ctx.QueryParam("teacher_id"); id != "" && id != usr.ID {
		if !usr.IsSchoolAdmin() {
			return errHttpForbidden
		}
		teacherID = id
	}

	stats, err := api.svc.TeacherGradingStats(ctx.Request().Context(), teacherID, getBranchScope(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "computing grading stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
