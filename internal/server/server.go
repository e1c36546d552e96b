package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra/auth"
	"github.com/xela07ax/spaceai-agent-pulse/internal/server/handler"
)

type PulseServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler  *handler.AuthHandler      // /auth/token
	agentHandler *handler.AgentHandler     // /v1/agents
	taskHandler  *handler.TaskHandler      // /v1/tasks
	dashHandler  *handler.DashboardHandler // /api/v1/dashboard
	alertHandler *handler.AlertHandler     // /v1/alerts
	liveHandler  *handler.LiveHandler      // /api/v1/dashboard/live (WebSocket)
}

// NewPulseServer инициализирует API монитора со всеми зависимостями
func NewPulseServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	taskH *handler.TaskHandler,
	dashH *handler.DashboardHandler,
	alertH *handler.AlertHandler,
	liveH *handler.LiveHandler,
) *PulseServer {
	s := &PulseServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("pulse-api"),
		cfg:           cfg,
		authValidator: validator,
		authHandler:   authH,
		agentHandler:  agentH,
		taskHandler:   taskH,
		dashHandler:   dashH,
		alertHandler:  alertH,
		liveHandler:   liveH,
	}

	s.routes()
	return s
}

func (s *PulseServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(
		rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst),
		s.logger,
	))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck: кто мониторит мониторинг
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard (единый read-контракт UI) + live-поток
		r.Get("/api/v1/dashboard", s.dashHandler.GetDashboard)
		r.Get("/api/v1/dashboard/live", s.liveHandler.Stream)
		r.Get("/v1/metrics/history", s.dashHandler.GetHistory)

		// Реестр агентов (регистрация, статусы, heartbeat)
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List)      // Список всех агентов
			r.Post("/", s.agentHandler.Register) // Регистрация воркера
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get)                 // Информация об агенте
				r.Post("/heartbeat", s.agentHandler.Heartbeat) // Самоотчет о ресурсах
			})
		})

		// Жизненный цикл задач (enqueue -> start -> complete/fail)
		r.Route("/v1/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Enqueue) // Постановка в очередь
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/start", s.taskHandler.Start)
				r.Post("/complete", s.taskHandler.Complete)
				r.Post("/fail", s.taskHandler.Fail)
			})
		})

		// Журнал алертов (список + acknowledge)
		r.Route("/v1/alerts", func(r chi.Router) {
			r.Get("/", s.alertHandler.List)
			r.Post("/{id}/ack", s.alertHandler.Acknowledge)
		})
	})
}

// ServeHTTP позволяет использовать PulseServer как стандартный http.Handler
func (s *PulseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
