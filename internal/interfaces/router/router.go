package router

import (
	"net/http"
	"time"

	archsvc "coitrack-backend/internal/application/archive"
	compsvc "coitrack-backend/internal/application/compliance"
	ctrsvc "coitrack-backend/internal/application/contractors"
	emailsvc "coitrack-backend/internal/application/emails"
	matchsvc "coitrack-backend/internal/application/matcher"
	"coitrack-backend/internal/application/renewal"
	reqsvc "coitrack-backend/internal/application/requirements"
	"coitrack-backend/internal/config"
	"coitrack-backend/internal/infrastructure/database"
	archhandler "coitrack-backend/internal/interfaces/handlers/archive"
	coihandler "coitrack-backend/internal/interfaces/handlers/cois"
	ctrhandler "coitrack-backend/internal/interfaces/handlers/contractors"
	healthhandler "coitrack-backend/internal/interfaces/handlers/health"
	pubhandler "coitrack-backend/internal/interfaces/handlers/publiccoi"
	reqhandler "coitrack-backend/internal/interfaces/handlers/requirements"
	"coitrack-backend/internal/locks"
	"coitrack-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.Metrics())
	app.Use(middleware.ActorContext())

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opt)
	}

	hh := &healthhandler.Handlers{Rdb: rdb}
	app.Get("/health/json", hh.JSON)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, nil, nil, errDB
		}
		hh.DB = &gormDBPinger{db: db}
	}

	if db != nil {
		var emailSender emailsvc.Sender
		if cfg.BrevoAPIKey != "" {
			emailSender = &emailsvc.BrevoClient{APIKey: cfg.BrevoAPIKey, MailFrom: cfg.MailFrom}
		}
		monitor := &renewal.Monitor{WindowDays: cfg.RenewalWindowDays}
		lock := &locks.COILock{Rdb: rdb}

		cs := &compsvc.Service{
			DB:             db,
			Lock:           lock,
			Sender:         emailSender,
			Monitor:        monitor,
			FrontendURL:    cfg.FrontendURL,
			UploadsBaseURL: cfg.UploadsBaseURL,
			TokenTTL:       time.Duration(cfg.TokenTTLDays) * 24 * time.Hour,
		}
		ch := &coihandler.Handlers{Service: cs}

		// Public broker endpoints: bearer token only, no actor headers.
		ph := &pubhandler.Handlers{Service: cs}
		pg := app.Group("/api/v1/public")
		pg.Get("/coi/:token", ph.View)
		pg.Post("/coi/:token/upload", ph.Upload)
		pg.Post("/coi/:token/sign", ph.Sign)

		cg := app.Group("/api/v1/cois", middleware.RequireActor())
		cg.Post("/", ch.Create)
		cg.Get("/pending", ch.Pending)
		cg.Post("/expiration-sweep", ch.ExpirationSweep)
		cg.Get("/:id", ch.Get)
		cg.Post("/:id/request-broker-info", ch.RequestBrokerInfo)
		cg.Post("/:id/approve", ch.Approve)
		cg.Post("/:id/reject", ch.Reject)
		cg.Post("/:id/replace", ch.Replace)
		cg.Post("/:id/verify-renewal", ch.VerifyRenewal)
		cg.Patch("/:id/broker", ch.UpdateBroker)

		rqs := &reqsvc.Service{DB: db}
		mts := &matchsvc.Service{DB: db}
		rh := &reqhandler.Handlers{Service: rqs, Matcher: mts}
		rg := app.Group("/api/v1/requirements", middleware.RequireActor())
		rg.Post("/", rh.Create)
		rg.Patch("/:id", rh.Update)
		rg.Delete("/:id", rh.Delete)

		projg := app.Group("/api/v1/projects", middleware.RequireActor())
		projg.Get("/:id/cois", ch.ForProject)
		projg.Get("/:id/requirements", rh.ListForProject)
		projg.Get("/:id/subcontractors/:subID/requirements", rh.MatchForSub)

		as := &archsvc.Service{DB: db}
		ah := &archhandler.Handlers{Service: as}
		ctrg := app.Group("/api/v1/contractors", middleware.RequireActor())
		ctrg.Post("/:id/archive", ah.ArchiveContractor)
		ctrg.Post("/:id/unarchive", ah.UnarchiveContractor)
		ctrg.Get("/:id/archive-tree", ah.Tree)
		projg.Post("/:id/archive", ah.ArchiveProject)
		projg.Post("/:id/unarchive", ah.UnarchiveProject)
		psg := app.Group("/api/v1/project-subcontractors", middleware.RequireActor())
		psg.Post("/:id/archive", ah.ArchiveProjectSub)
		psg.Post("/:id/unarchive", ah.UnarchiveProjectSub)

		cts := &ctrsvc.Service{DB: db, Sender: emailSender}
		cth := &ctrhandler.Handlers{Service: cts}
		ctrg.Patch("/:id/broker", cth.UpdateBroker)
	}

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
