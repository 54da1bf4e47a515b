package echoapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/user"
)

const (
	contextScopeKey = "branchScope"
	branchParam     = "branch_id"
)

// Permissions
var (
	isAdmin       = func(u user.User) bool { return u.IsAdmin() }
	isSchoolAdmin = func(u user.User) bool { return u.IsSchoolAdmin() }
	isStaff       = func(u user.User) bool { return u.IsStaff() }

	canManagePayments = func(u user.User) bool { return u.IsSchoolAdmin() || u.IsAccountant() }
	// exams, results, attendance & homework
	canManageClasswork  = func(u user.User) bool { return u.IsSchoolAdmin() || u.IsTeacher() }
	canManageDiscipline = func(u user.User) bool { return u.IsSchoolAdmin() || u.IsCounselor() }
	// incidents & behavior points
	canRecordBehavior = func(u user.User) bool { return canManageDiscipline(u) || u.IsTeacher() }
)

// roleMiddleware lets the request through when the context user passes any of checks.
func roleMiddleware(checks ...func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			for _, check := range checks {
				if check(usr) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(isAdmin)
}

// branchScope is the branch a request is restricted to; an empty ID means every branch.
type branchScope struct {
	ID       string
	Confined bool // the user belongs to the branch & cannot leave it
}

// Allows reports whether a record of branchID is visible within the scope.
func (s branchScope) Allows(branchID string) bool {
	return !s.Confined || s.ID == branchID
}

// Resolve returns the branch a new record goes to: the requested one when allowed, else the scope's.
func (s branchScope) Resolve(requested string) (string, error) {
	if requested == "" {
		return s.ID, nil
	}
	if !s.Allows(requested) {
		return "", errHttpForbidden
	}
	return requested, nil
}

// branchScopeMiddleware resolves the request's branchScope: the user's own branch, else the `branch_id`
// query param, else their `selectedBranch` preference, else every branch.
func branchScopeMiddleware(branches *branch.Service, prefs *preference.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			scope := branchScope{ID: usr.BranchID, Confined: usr.BranchID != ""}
			if !scope.Confined {
				reqCtx := ctx.Request().Context()
				if id := ctx.QueryParam(branchParam); id != "" {
					if _, err = uuid.Parse(id); err != nil {
						return core.NewFieldValidationError(branchParam, "invalid branch")
					}
					ok, err := branches.Exists(reqCtx, id)
					if err != nil {
						return errors.Wrap(err, "checking branch")
					}
					if !ok {
						return core.NewFieldValidationError(branchParam, "branch does not exist")
					}
					scope.ID = id
				} else if scope.ID, err = prefs.SelectedBranch(reqCtx, usr.ID); err != nil {
					return errors.Wrap(err, "getting selected branch")
				}
			}
			ctx.Set(contextScopeKey, scope)
			return next(ctx)
		}
	}
}

func getBranchScope(ctx echo.Context) branchScope {
	scope, _ := ctx.Get(contextScopeKey).(branchScope)
	return scope
}

// invalidateCacheMiddleware drops the cached widgets after every successful mutation.
func invalidateCacheMiddleware(svc *dashboard.Service, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			err := next(ctx)
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return err
			}
			if err == nil && ctx.Response().Status < http.StatusBadRequest {
				if cErr := svc.Invalidate(ctx.Request().Context()); cErr != nil {
					logger.Warn("invalidating dashboard cache", cErr)
				}
			}
			return err
		}
	}
}
