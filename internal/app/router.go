package app

import (
	"database/sql"
	"net/http"
	"time"

	"cbtexam/internal/app/observability"
	"cbtexam/internal/auth"
	"cbtexam/internal/catalog"
	"cbtexam/internal/events"
	"cbtexam/internal/exam"
	"cbtexam/internal/question"
	"cbtexam/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, dbConn *sql.DB, storage exam.SnapshotStorage, bus *events.Bus) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := auth.NewService(dbConn, auth.ServiceConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		TokenTTL:  cfg.TokenTTL(),
	})
	authHandler := auth.NewHandler(authSvc)

	catalogSvc := catalog.NewService(dbConn)
	catalogHandler := catalog.NewHandler(catalogSvc)

	questionSvc := question.NewService(dbConn)
	questionHandler := question.NewHandler(questionSvc)

	examSvc := exam.NewService(dbConn, questionSvc, bus, cfg.DefaultExamMinutes)
	examMgr := exam.NewManager(examSvc, storage)
	examHandler := exam.NewHandler(examMgr, examSvc)

	reportSvc := report.NewService(dbConn)
	reportHandler := report.NewHandler(reportSvc)

	collector := observability.NewCollector(dbConn, examMgr.ActiveCount)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/levels", catalogHandler.ListLevels)
			secure.Get("/subjects", catalogHandler.ListSubjects)
			secure.Get("/packages", catalogHandler.ListPackages)
			secure.Get("/packages/{id}", catalogHandler.GetPackage)

			secure.Post("/packages/{packageID}/session/start", examHandler.Start)
			secure.Get("/packages/{packageID}/session", examHandler.State)
			secure.Get("/packages/{packageID}/session/questions", examHandler.Questions)
			secure.Post("/packages/{packageID}/session/select", examHandler.Select)
			secure.Put("/packages/{packageID}/session/answer", examHandler.SetAnswer)
			secure.Post("/packages/{packageID}/session/flag", examHandler.Flag)
			secure.Post("/packages/{packageID}/session/submit", examHandler.Submit)
			secure.Delete("/packages/{packageID}/session", examHandler.Abandon)

			secure.Get("/results/mine", reportHandler.MyResults)
			secure.Get("/results/{id}", reportHandler.GetResult)

			secure.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRoles(auth.RoleAdmin))

				admin.Get("/admin/users", authHandler.ListUsers)
				admin.Post("/admin/users", authHandler.CreateUser)

				admin.Post("/admin/levels", catalogHandler.CreateLevel)
				admin.Put("/admin/levels/{id}", catalogHandler.UpdateLevel)
				admin.Delete("/admin/levels/{id}", catalogHandler.DeleteLevel)

				admin.Post("/admin/subjects", catalogHandler.CreateSubject)
				admin.Put("/admin/subjects/{id}", catalogHandler.UpdateSubject)
				admin.Delete("/admin/subjects/{id}", catalogHandler.DeleteSubject)

				admin.Post("/admin/packages", catalogHandler.CreatePackage)
				admin.Put("/admin/packages/{id}", catalogHandler.UpdatePackage)
				admin.Delete("/admin/packages/{id}", catalogHandler.DeletePackage)

				admin.Get("/admin/questions", questionHandler.List)
				admin.Get("/admin/questions/{id}", questionHandler.Get)
				admin.Post("/admin/questions", questionHandler.Create)
				admin.Put("/admin/questions/{id}", questionHandler.Update)
				admin.Delete("/admin/questions/{id}", questionHandler.Delete)
				admin.Post("/admin/packages/{packageID}/questions/import", questionHandler.Import)
				admin.Get("/admin/packages/{packageID}/questions/export", questionHandler.Export)

				admin.Get("/admin/packages/{packageID}/results", reportHandler.PackageResults)
				admin.Get("/admin/packages/{packageID}/results/summary", reportHandler.PackageSummary)
				admin.Get("/admin/packages/{packageID}/results/export", reportHandler.Export)
			})
		})
	})

	return r
}
