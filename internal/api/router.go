package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/imaging"
	"github.com/erazemk/karat/internal/ledger"
	"github.com/erazemk/karat/internal/metrics"
	"github.com/erazemk/karat/internal/model"
)

// requestTimeout bounds the handling of any one request.
const requestTimeout = 60 * time.Second

// RouterConfig holds the dependencies of the HTTP API.
type RouterConfig struct {
	DB          *sqlx.DB
	JWTSecret   string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Recorder    *ledger.Recorder
	CORSOrigins []string
	Images      imaging.Options
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = ledger.New(cfg.DB, ledger.WithLogger(log), ledger.WithMetrics(cfg.Metrics))
	}

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret, Log: log}
	usersHandler := &UsersHandler{DB: cfg.DB, Log: log}
	inventoryHandler := &InventoryHandler{DB: cfg.DB, Log: log, Images: cfg.Images}
	transactionsHandler := &TransactionsHandler{DB: cfg.DB, Recorder: recorder, Log: log}
	dealersHandler := &DealersHandler{DB: cfg.DB, Log: log}
	employeesHandler := &EmployeesHandler{DB: cfg.DB, Log: log}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerIdempotencyKey},
			ExposedHeaders:   []string{headerReplayed},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", Health(cfg.DB, log))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public: login.
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret, cfg.DB, log))

			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/password", authHandler.ChangePassword)
			r.Post("/auth/logout", authHandler.Logout)

			// Users (admin only).
			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}", usersHandler.Update)
				r.Put("/{id}/password", usersHandler.ResetPassword)
				r.Delete("/{id}", usersHandler.Delete)
			})

			r.Route("/inventory", func(r chi.Router) {
				// Transactions (all roles).
				r.Post("/transactions", transactionsHandler.Create)
				r.Get("/transactions", transactionsHandler.List)
				r.Get("/transactions/{id}", transactionsHandler.Get)

				// Items: read (all roles), write (manager+).
				r.Get("/", inventoryHandler.List)
				r.Get("/{id}", inventoryHandler.Get)
				r.Get("/{id}/image", inventoryHandler.GetImage)
				r.With(requireManager).Post("/", inventoryHandler.Create)
				r.With(requireManager).Put("/{id}", inventoryHandler.Update)
				r.With(requireManager).Put("/{id}/image", inventoryHandler.UploadImage)
			})

			// Dealers: read (all roles), write (manager+).
			r.Route("/dealers", func(r chi.Router) {
				r.Get("/", dealersHandler.List)
				r.Get("/{id}", dealersHandler.Get)
				r.With(requireManager).Post("/", dealersHandler.Create)
				r.With(requireManager).Put("/{id}", dealersHandler.Update)
			})

			// Employees: read (all roles), write (manager+).
			r.Route("/employees", func(r chi.Router) {
				r.Get("/", employeesHandler.List)
				r.Get("/{id}", employeesHandler.Get)
				r.With(requireManager).Post("/", employeesHandler.Create)
				r.With(requireManager).Put("/{id}", employeesHandler.Update)
			})
		})
	})

	return r
}
