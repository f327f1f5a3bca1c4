package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/closerdesk/closerdesk/app/controllers"
	"github.com/closerdesk/closerdesk/app/repository"
	"github.com/closerdesk/closerdesk/internal/pkg/apidocs"
	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
	"github.com/closerdesk/closerdesk/internal/pkg/cache"
	"github.com/closerdesk/closerdesk/internal/pkg/calendar"
	"github.com/closerdesk/closerdesk/internal/pkg/database"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
	"github.com/closerdesk/closerdesk/internal/pkg/events"
	"github.com/closerdesk/closerdesk/internal/pkg/hcaptcha"
	"github.com/closerdesk/closerdesk/internal/pkg/importer"
	"github.com/closerdesk/closerdesk/internal/pkg/intake"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
	"github.com/closerdesk/closerdesk/internal/pkg/mail"
	"github.com/closerdesk/closerdesk/internal/pkg/oauth"
	"github.com/closerdesk/closerdesk/internal/pkg/router"
	"github.com/closerdesk/closerdesk/internal/pkg/scheduling"
	"github.com/closerdesk/closerdesk/internal/pkg/session"
	"github.com/closerdesk/closerdesk/internal/pkg/statistics"
	"github.com/closerdesk/closerdesk/internal/pkg/webhook"
)

// 10 MiB import files plus multipart overhead
const bodyLimit = 12 * 1024 * 1024

func main() {
	app, jobs := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	jobs.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	session.SetStore(session.NewSessionStore())
	oauth.Setup()

	db := database.GetDB()
	jobs := jobqueue.GetManager()
	sched := scheduling.ConfigFromEnv()

	authCfg, err := auth.LoadConfig()
	if err != nil {
		log.Fatalf("Auth configuration: %v", err)
	}

	// side effects, each registers its job handlers before the workers start
	hooks := webhook.NewServiceFromDB(db, jobs)
	hooks.RegisterJobs()
	cal := calendar.NewServiceFromDB(db, jobs, sched.SlotLength)
	cal.RegisterJobs()
	confirmations := mail.NewConfirmations(mail.NewFromEnv(), mail.NewAppointmentLoader(db), jobs, sched.DefaultLocation)
	confirmations.RegisterJobs()

	importRepo := importer.NewRepository(db)
	var importOpts []importer.Option
	if archiver := importer.NewArchiverFromEnv(importRepo, jobs); archiver != nil {
		archiver.RegisterJobs()
		importOpts = append(importOpts, importer.WithArchiver(archiver))
	}
	jobs.Start()

	stats := statistics.NewServiceFromDB(db,
		statistics.WithCache(statistics.RedisCache{}),
		statistics.WithLocation(sched.DefaultLocation),
	)
	publisher := events.NewFanout(hooks, stats)

	slots := scheduling.NewService(scheduling.NewRepository(db), sched)
	bookings := booking.NewServiceFromDB(db,
		booking.WithPublisher(publisher),
		booking.WithCalendarSync(cal),
		booking.WithConfirmer(confirmations),
	)
	leads := intake.NewServiceFromDB(db,
		intake.WithPublisher(publisher),
		intake.WithBooker(bookings),
		intake.WithSlots(slots),
	)
	sales := ledger.NewServiceFromDB(db, ledger.WithPublisher(publisher))
	imports := importer.NewService(importRepo, leads, sales, importOpts...)
	authService := auth.NewServiceFromDB(db, authCfg, auth.WithBlacklist(auth.RedisBlacklist{}))

	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
		AppName:   "CloserDesk",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, &router.Handlers{
		Authenticator:  authService,
		Auth:           controllers.NewAuthController(authService),
		Public:         controllers.NewPublicController(slots, leads, hcaptcha.NewFromEnv()),
		Reports:        controllers.NewReportController(stats),
		Leads:          controllers.NewLeadController(leads, sales),
		Appointments:   controllers.NewAppointmentController(bookings),
		Availability:   controllers.NewAvailabilityController(repos.Availability),
		Sales:          controllers.NewSalesController(sales),
		Calendar:       controllers.NewCalendarController(cal),
		Admin:          controllers.NewAdminController(repos, sales, hooks),
		Imports:        controllers.NewImportController(imports),
		LimiterStorage: limiterStorage(),
		DocsFile:       apidocs.Locate(),
	})

	return app, jobs
}

// limiterStorage keeps public rate-limit counters in Redis so every
// instance shares them.
func limiterStorage() fiber.Storage {
	return cache.Storage(cache.DBLimiter)
}
