// ABOUTME: Gateway orchestrator that wires store, hub, and HTTP server together
// ABOUTME: Manages startup, routing, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetward/fleetward/internal/auth"
	"github.com/fleetward/fleetward/internal/config"
	"github.com/fleetward/fleetward/internal/hub"
	"github.com/fleetward/fleetward/internal/store"
)

// shutdownTimeout bounds how long graceful shutdown waits for in-flight
// requests, including long-lived streams.
const shutdownTimeout = 10 * time.Second

// Gateway orchestrates the fleetward server components: the agent registry
// and command queue (store), the broadcast hub, and the HTTP surface for
// both agents and operators.
type Gateway struct {
	config     *config.Config
	store      store.Store
	streams    *hub.CommandStreams
	events     *hub.AgentEvents
	verifier   *auth.JWTVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway with the given configuration. The SQLite store is
// opened (and its schema created) here; Run starts serving.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	g := &Gateway{
		config:   cfg,
		store:    s,
		streams:  hub.NewCommandStreams(logger),
		events:   hub.NewAgentEvents(logger),
		verifier: auth.NewJWTVerifier([]byte(cfg.Operator.JWTSecret)),
		logger:   logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// routes builds the HTTP mux. Agent-facing endpoints sit behind the HMAC
// middleware, operator-facing ones behind the JWT middleware; health and
// login are open.
func (g *Gateway) routes() http.Handler {
	agentMW := auth.AgentMiddleware(g.config.Fleet.Key)
	tokenMW := auth.TokenMiddleware(g.verifier, g.config.Operator.User)

	mux := http.NewServeMux()

	// Open endpoints
	mux.HandleFunc("/api/health", g.handleHealth)
	mux.HandleFunc("/api/auth/login", g.handleLogin)

	// Fleet boundary (HMAC)
	mux.Handle("/api/heartbeat", agentMW(http.HandlerFunc(g.handleHeartbeat)))
	mux.Handle("/api/command-chunk", agentMW(http.HandlerFunc(g.handleCommandChunk)))
	mux.Handle("/api/command-result", agentMW(http.HandlerFunc(g.handleCommandResult)))

	// Operator boundary (JWT)
	mux.Handle("/api/agents", tokenMW(http.HandlerFunc(g.handleListAgents)))
	mux.Handle("/api/metrics", tokenMW(http.HandlerFunc(g.handleMetrics)))
	mux.Handle("/api/commands/", tokenMW(http.HandlerFunc(g.handleCommandRoutes)))
	mux.HandleFunc("/api/ws", g.handleAgentEventsSocket)

	// /api/agents/{id}[/...] mixes both boundaries; dispatch by suffix
	mux.Handle("/api/agents/", g.agentRoutes(agentMW, tokenMW))

	return mux
}

// agentRoutes dispatches /api/agents/{id} and its sub-resources.
// next-command is an agent-authenticated claim; the rest are operator
// endpoints.
func (g *Gateway) agentRoutes(agentMW, tokenMW func(http.Handler) http.Handler) http.Handler {
	nextCommand := agentMW(http.HandlerFunc(g.handleNextCommand))
	enqueue := tokenMW(http.HandlerFunc(g.handleEnqueueCommand))
	sudoCheck := tokenMW(http.HandlerFunc(g.handleSudoCheck))
	getAgent := tokenMW(http.HandlerFunc(g.handleGetAgent))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
		agentID, sub, _ := strings.Cut(rest, "/")
		if agentID == "" {
			http.NotFound(w, r)
			return
		}

		switch sub {
		case "next-command":
			nextCommand.ServeHTTP(w, r)
		case "commands":
			enqueue.ServeHTTP(w, r)
		case "sudo-check":
			sudoCheck.ServeHTTP(w, r)
		case "":
			getAgent.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// agentIDFromPath extracts the {id} segment from /api/agents/{id}[/...].
func agentIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/agents/")
	agentID, _, _ := strings.Cut(rest, "/")
	return agentID
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		g.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	})

	err := eg.Wait()

	if closeErr := g.store.Close(); closeErr != nil {
		g.logger.Error("closing store", "error", closeErr)
	}
	return err
}

// Handler exposes the routed mux, primarily for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// handleHealth handles GET /api/health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
