package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/payment"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/reportcard"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc       *user.Service
		BranchSvc     *branch.Service
		StudentSvc    *student.Service
		PaymentSvc    *payment.Service
		AttendanceSvc *attendance.Service
		ExamSvc       *exam.Service
		ReportCardSvc *reportcard.Service
		DisciplineSvc *discipline.Service
		HomeworkSvc   *homework.Service
		PreferenceSvc *preference.Service
		DashboardSvc  *dashboard.Service
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	srv := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(srv.shutdown, os.Interrupt, syscall.SIGTERM)
	srv.setup()
	return srv
}

func (srv *Server) setup() {
	app := srv.app
	app.HideBanner = true
	app.Debug = srv.Conf.Debug

	app.Pre(middleware.RemoveTrailingSlash())
	if !srv.DisableReqLogs {
		app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(srv.Conf.Debug || srv.Conf.TestMode) {
		app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	app.HTTPErrorHandler = newAppHTTPErrorHandler(srv.Logger, srv.Translator, srv.SignalShutdown)

	app.GET("/", home)

	v1 := app.Group("/v1", invalidateCacheMiddleware(srv.DashboardSvc, srv.Logger))
	auth := authMiddleware(srv.UserSvc)
	scope := branchScopeMiddleware(srv.BranchSvc, srv.PreferenceSvc)

	registerUserAPI(v1, auth, srv.UserSvc, srv.StudentSvc, srv.Validate)
	authed := v1.Group("", auth, scope)
	registerBranchAPI(authed, srv.BranchSvc, srv.Validate)
	registerStudentAPI(authed, srv.StudentSvc, srv.ReportCardSvc, srv.DisciplineSvc, srv.AttendanceSvc, srv.Validate)
	registerPaymentAPI(authed, srv.PaymentSvc, srv.StudentSvc, srv.Validate)
	registerAttendanceAPI(authed, srv.AttendanceSvc, srv.Validate)
	registerExamAPI(authed, srv.ExamSvc, srv.Validate)
	registerReportCardAPI(authed, srv.ReportCardSvc, srv.Validate)
	registerDisciplineAPI(authed, srv.DisciplineSvc, srv.StudentSvc, srv.Validate)
	registerHomeworkAPI(authed, srv.HomeworkSvc, srv.StudentSvc, srv.Validate)
	registerDashboardAPI(authed, srv.DashboardSvc)
	registerPreferenceAPI(authed, srv.PreferenceSvc, srv.Validate)
}

// Start listens on the configured address; failures are sent to Errors.
func (srv *Server) Start() {
	if err := srv.app.Start(srv.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		srv.errors <- err
	}
}

func (srv *Server) Errors() <-chan error { return srv.errors }

func (srv *Server) ShutdownSignal() <-chan os.Signal { return srv.shutdown }

// SignalShutdown asks the owner of the Server to shut it down gracefully.
func (srv *Server) SignalShutdown() {
	select {
	case srv.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (srv *Server) Shutdown(ctx context.Context) error { return srv.app.Shutdown(ctx) }

func (srv *Server) Close() error { return srv.app.Close() }

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	srv.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}
