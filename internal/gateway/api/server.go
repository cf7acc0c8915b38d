// Package api exposes the HTTP surface of the runtime: workflow and
// execution management, the node catalog, schedules, health, and the
// WebSocket upgrade endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Narcis13/workscript/internal/engine"
	"github.com/Narcis13/workscript/internal/gateway/ws"
	"github.com/Narcis13/workscript/internal/monitoring"
	"github.com/Narcis13/workscript/internal/node"
	"github.com/Narcis13/workscript/internal/platform/auth"
	"github.com/Narcis13/workscript/internal/platform/config"
	"github.com/Narcis13/workscript/internal/platform/logger"
	"github.com/Narcis13/workscript/internal/trigger"
	"github.com/Narcis13/workscript/internal/workflow"
)

// Server wires the HTTP routes.
type Server struct {
	engine    *engine.Engine
	registry  *node.Registry
	store     workflow.Store
	queue     engine.SubmissionQueue
	scheduler *trigger.Scheduler
	hub       *ws.Hub
	sampler   *monitoring.Sampler
	tokens    *auth.TokenService
	log       logger.Logger
	cfg       config.ServerConfig

	router *mux.Router
}

// Deps collects the server's collaborators.
type Deps struct {
	Engine    *engine.Engine
	Registry  *node.Registry
	Store     workflow.Store
	Queue     engine.SubmissionQueue
	Scheduler *trigger.Scheduler
	Hub       *ws.Hub
	Sampler   *monitoring.Sampler
	Tokens    *auth.TokenService
	Logger    logger.Logger
	Config    config.ServerConfig
	Auth      config.AuthConfig
	Metrics   http.Handler
}

// New creates the server and its routes.
func New(deps Deps) *Server {
	s := &Server{
		engine:    deps.Engine,
		registry:  deps.Registry,
		store:     deps.Store,
		queue:     deps.Queue,
		scheduler: deps.Scheduler,
		hub:       deps.Hub,
		sampler:   deps.Sampler,
		tokens:    deps.Tokens,
		log:       deps.Logger,
		cfg:       deps.Config,
	}

	r := mux.NewRouter()
	r.Use(Recovery(s.log))
	r.Use(Logging(s.log))
	r.Use(CORS(nil))
	r.Use(Auth(s.tokens, deps.Auth.Required))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	r.Handle("/ws", ws.NewHandler(s.hub))

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)

	v1.HandleFunc("/workflows", s.handleSaveWorkflow).Methods(http.MethodPost)
	v1.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	v1.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	v1.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	v1.HandleFunc("/workflows/{id}/run", s.handleRunWorkflow).Methods(http.MethodPost)

	v1.HandleFunc("/executions", s.handleSubmitExecution).Methods(http.MethodPost)
	v1.HandleFunc("/executions", s.handleListExecutions).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}", s.handleGetExecution).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}/cancel", s.handleCancelExecution).Methods(http.MethodPost)

	if s.scheduler != nil {
		v1.HandleFunc("/schedules", s.handleAddSchedule).Methods(http.MethodPost)
		v1.HandleFunc("/schedules", s.handleListSchedules).Methods(http.MethodGet)
		v1.HandleFunc("/schedules/{id}", s.handleRemoveSchedule).Methods(http.MethodDelete)
	}

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
