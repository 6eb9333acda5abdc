package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"researchtools/internal/auth"
	"researchtools/internal/config"
	apperrors "researchtools/internal/errors"
	"researchtools/internal/framework"
	"researchtools/internal/inference"
	"researchtools/internal/research"
	"researchtools/internal/search"
	"researchtools/internal/websocket"
)

const (
	maxBodyBytes   = 10 << 20
	requestsPerMin = 100
)

// LoginRecorder is told about successful logins
type LoginRecorder interface {
	UserLoggedIn(ctx context.Context, userID, method string)
}

// Pinger checks the database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP surface. Search and Logins may be nil.
type Deps struct {
	Config     *config.Config
	DB         Pinger
	Auth       *auth.AuthService
	Frameworks *framework.Service
	AI         *inference.Service
	Research   *research.Service
	Jobs       *research.JobManager
	Search     *search.Index
	WS         *websocket.WebSocketManager
	Logins     LoginRecorder
}

// Server represents the HTTP server
type Server struct {
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	deps    Deps
	limiter *RateLimiter
	errors  *apperrors.ErrorHandler
	logger  *zap.Logger
	started time.Time
	collect func(ctx context.Context) (map[string]interface{}, error)
}

// NewServer creates the HTTP server and registers every route
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")
	router := mux.NewRouter()

	s := &Server{
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", deps.Config.ServerPort),
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:    deps,
		limiter: NewRateLimiter(time.Minute, requestsPerMin),
		errors:  apperrors.NewErrorHandler(logger),
		logger:  logger,
		started: time.Now(),
		collect: collectSystemMetrics,
	}

	// CORS wraps the router so preflight requests are answered before
	// method matching.
	s.handler = loggingMiddleware(logger)(corsMiddleware(deps.Config.CORSOrigin)(router))
	s.server.Handler = s.handler

	router.Use(securityHeadersMiddleware)
	router.Use(rateLimitMiddleware(s.limiter))
	router.Use(validationMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.SendError(w, apperrors.NewNotFoundError("route"))
	})

	s.setupRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.limiter.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.limiter.Stop()
	if s.deps.WS != nil {
		s.deps.WS.CloseAll()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

type route struct {
	path    string
	method  string
	handler http.HandlerFunc
	cap     auth.Capability
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	as := s.deps.Auth
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public authentication routes
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/hash/register", s.handleHashRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/hash/login", s.handleHashLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	// The websocket authenticates with the cookie session or a bearer token
	// before upgrading.
	s.router.Handle("/ws", as.AuthMiddleware(http.HandlerFunc(s.handleWebSocket))).Methods(http.MethodGet)
	api.Handle("/ws", as.AuthMiddleware(http.HandlerFunc(s.handleWebSocket))).Methods(http.MethodGet)

	protected := []route{
		{"/auth/me", http.MethodGet, s.handleMe, ""},
		{"/auth/hash/rotate", http.MethodPost, s.handleHashRotate, ""},
		{"/system/metrics", http.MethodGet, s.handleSystemMetrics, auth.CapAdmin},

		{"/frameworks", http.MethodGet, s.handleListFrameworkTypes, ""},
		{"/frameworks/{type}", http.MethodGet, s.handleListSessions, ""},
		{"/frameworks/{type}", http.MethodPost, s.handleCreateSession, auth.CapCreateFrameworks},
		{"/frameworks/{type}/templates/list", http.MethodGet, s.handleTemplates, ""},
		{"/frameworks/ach/{id}/matrix", http.MethodGet, s.handleACHMatrix, ""},
		{"/frameworks/causeway/{id}/graph", http.MethodGet, s.handleCauseWayGraph, ""},
		{"/frameworks/causeway/{id}/chains", http.MethodGet, s.handleCauseWayChains, ""},
		{"/frameworks/causeway/{id}/risk", http.MethodGet, s.handleCauseWayRisk, ""},
		{"/frameworks/{type}/{id}", http.MethodGet, s.handleGetSession, ""},
		{"/frameworks/{type}/{id}", http.MethodPut, s.handleUpdateSession, auth.CapCreateFrameworks},
		{"/frameworks/{type}/{id}", http.MethodDelete, s.handleDeleteSession, auth.CapCreateFrameworks},
		{"/frameworks/{type}/{id}/analyze", http.MethodPost, s.handleAnalyzeSession, auth.CapCreateFrameworks},
		{"/frameworks/{type}/{id}/export", http.MethodPost, s.handleExportSession, auth.CapExport},
		{"/frameworks/{type}/{id}/sections/{section}", http.MethodPost, s.handleAppendEntry, auth.CapCreateFrameworks},
		{"/causeway/graph", http.MethodPost, s.handleBuildCauseWayGraph, ""},
		{"/downloads/{file}", http.MethodGet, s.handleDownload, auth.CapExport},

		{"/ai/5w", http.MethodPost, s.handle5W, ""},
		{"/ai/starbursting", http.MethodPost, s.handleStarbursting, ""},
		{"/ai/summarize", http.MethodPost, s.handleSummarize, ""},
		{"/ai/dime", http.MethodPost, s.handleDIME, ""},

		{"/urls", http.MethodPost, s.handleProcessURL, ""},
		{"/urls", http.MethodGet, s.handleListURLs, ""},
		{"/urls/{id}", http.MethodGet, s.handleGetURL, ""},
		{"/citations", http.MethodPost, s.handleCreateCitation, ""},
		{"/citations", http.MethodGet, s.handleListCitations, ""},
		{"/citations/{id}", http.MethodGet, s.handleGetCitation, ""},
		{"/citations/{id}", http.MethodDelete, s.handleDeleteCitation, ""},
		{"/citations/{id}/format", http.MethodGet, s.handleFormatCitation, ""},
		{"/scrape", http.MethodPost, s.handleScrape, ""},
		{"/documents", http.MethodPost, s.handleProcessDocument, ""},
		{"/jobs", http.MethodPost, s.handleSubmitJob, ""},
		{"/jobs", http.MethodGet, s.handleListJobs, ""},
		{"/jobs/{id}", http.MethodGet, s.handleGetJob, ""},
		{"/jobs/{id}/cancel", http.MethodPost, s.handleCancelJob, ""},
		{"/search", http.MethodGet, s.handleSearch, ""},
	}
	for _, rt := range protected {
		var h http.Handler = rt.handler
		if rt.cap != "" {
			h = auth.RequireCapability(rt.cap)(h)
		}
		api.Handle(rt.path, as.AuthMiddleware(h)).Methods(rt.method)
	}
}

// handleHealth reports liveness and database reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	database := "ok"
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			s.logger.Warn("health check: database unreachable", zap.Error(err))
			status, code, database = "degraded", http.StatusServiceUnavailable, "unreachable"
		}
	}
	apperrors.SendSuccessStatus(w, code, map[string]interface{}{
		"status":       status,
		"database":     database,
		"ai_available": s.deps.AI != nil && s.deps.AI.Available(),
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.GetUserFromContext(r.Context())
	s.deps.WS.HandleConnection(w, r, u.ID)
}
