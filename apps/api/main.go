package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/shule/apps/api/echo"
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
	cachesvc "github.com/trezcool/shule/services/cache"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	sheetsvc "github.com/trezcool/shule/services/spreadsheet"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// repositories of every domain, from a single storage engine.
type repositories struct {
	users       user.Repository
	branches    branch.Repository
	students    student.Repository
	payments    payment.Repository
	attendance  attendance.Repository
	exams       exam.Repository
	discipline  discipline.Repository
	homework    homework.Repository
	preferences preference.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.Conf

	// set up loggers
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer func() { _ = logger.Sync() }()

	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)

	// set up storage
	repos, closeDB, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up cache
	cache, closeCache := setUpCache(conf, logger)
	defer closeCache()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	sheets := sheetsvc.NewExcelService()

	usrSvc := user.NewService(repos.users, mailSvc)
	branchSvc := branch.NewService(repos.branches)
	studentSvc := student.NewService(repos.students, branchSvc, sheets)
	paymentSvc := payment.NewService(repos.payments, studentSvc, sheets)
	attendanceSvc := attendance.NewService(repos.attendance, studentSvc)
	examSvc := exam.NewService(repos.exams, branchSvc, studentSvc, sheets)
	disciplineSvc := discipline.NewService(repos.discipline, studentSvc, mailSvc)
	homeworkSvc := homework.NewService(repos.homework, branchSvc, studentSvc)
	preferenceSvc := preference.NewService(repos.preferences, dashboard.Catalog{}, validate)
	dashboardSvc := dashboard.NewService(dashboard.Services{
		Students:    studentSvc,
		Payments:    paymentSvc,
		Attendance:  attendanceSvc,
		Exams:       examSvc,
		Discipline:  disciplineSvc,
		Homework:    homeworkSvc,
		Preferences: preferenceSvc,
	}, cache, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		BranchSvc:     branchSvc,
		StudentSvc:    studentSvc,
		PaymentSvc:    paymentSvc,
		AttendanceSvc: attendanceSvc,
		ExamSvc:       examSvc,
		ReportCardSvc: reportcard.NewService(studentSvc, examSvc, attendanceSvc, disciplineSvc, mailSvc),
		DisciplineSvc: disciplineSvc,
		HomeworkSvc:   homeworkSvc,
		PreferenceSvc: preferenceSvc,
		DashboardSvc:  dashboardSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStorage opens the configured engine: postgres (created & migrated if needed) or inmem.
func setUpStorage(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.Engine == "inmem" {
		db := inmemdb.Open()
		return repositories{
			users:       inmemdb.NewUserRepository(db),
			branches:    inmemdb.NewBranchRepository(db),
			students:    inmemdb.NewStudentRepository(db),
			payments:    inmemdb.NewPaymentRepository(db),
			attendance:  inmemdb.NewAttendanceRepository(db),
			exams:       inmemdb.NewExamRepository(db),
			discipline:  inmemdb.NewDisciplineRepository(db),
			homework:    inmemdb.NewHomeworkRepository(db),
			preferences: inmemdb.NewPreferenceRepository(db),
		}, func() error { return nil }, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return repositories{}, nil, err
	}
	return repositories{
		users:       sqlxrepos.NewUserRepository(db),
		branches:    sqlxrepos.NewBranchRepository(db),
		students:    sqlxrepos.NewStudentRepository(db),
		payments:    sqlxrepos.NewPaymentRepository(db),
		attendance:  sqlxrepos.NewAttendanceRepository(db),
		exams:       sqlxrepos.NewExamRepository(db),
		discipline:  sqlxrepos.NewDisciplineRepository(db),
		homework:    sqlxrepos.NewHomeworkRepository(db),
		preferences: sqlxrepos.NewPreferenceRepository(db),
	}, db.Close, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// setUpCache connects to redis when configured; the process-local cache is used otherwise,
// or when redis cannot be reached.
func setUpCache(conf *core.Config, logger core.Logger) (core.Cache, func()) {
	if conf.Cache.RedisAddr == "" {
		return cachesvc.NewMemoryCache(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	client, err := cachesvc.NewRedisClient(ctx, conf.Cache)
	if err != nil {
		logger.Warn("redis unavailable, using the in-process cache", err)
		return cachesvc.NewMemoryCache(), func() {}
	}
	return cachesvc.NewRedisCache(client), func() { closeRedis(client, logger) }
}

func closeRedis(client *redis.Client, logger core.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("closing redis", err)
	}
}
