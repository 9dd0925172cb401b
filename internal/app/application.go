package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"syncboard/internal/api"
	"syncboard/internal/config"
	"syncboard/internal/database"
	"syncboard/internal/hub"
	"syncboard/internal/permissions"
	"syncboard/internal/router"
	"syncboard/internal/session"
	"syncboard/internal/syncobj"
	"syncboard/internal/websocket"
	"syncboard/internal/whiteboard"
	pkgdatabase "syncboard/pkg/database"
)

// Idle rate limiter entries are swept on this schedule
const (
	limiterSweepInterval = time.Minute
	limiterMaxIdle       = 10 * time.Minute
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	connections    *websocket.Registry
	objects        *syncobj.Registry
	engine         *permissions.Engine
	whiteboards    *whiteboard.Manager
	sessionManager *session.Manager
	rateLimiter    *router.RateLimiter
	messageRouter  *router.Router
	messageHub     *hub.Hub
	apiServer      *api.Server
	httpServer     *http.Server

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// openDatabase opens the configured SQLite file and brings its schema up to date
func openDatabase(cfg *config.Config) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	applied, err := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath).ApplyMigrations()
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Printf("Database migrations applied: path=%s applied=%d", cfg.Database.Path, applied)

	return dbManager, nil
}

// Migrate applies pending migrations and closes the database
func Migrate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dbManager, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	return dbManager.Close()
}

// roleTable converts configured roles into permission layers
func roleTable(cfg *config.PermissionsConfig) map[string]permissions.Role {
	roles := make(map[string]permissions.Role, len(cfg.Roles))
	for name, role := range cfg.Roles {
		roles[name] = permissions.Role{Priority: role.Priority, Values: role.Values}
	}
	return roles
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Transport → Sync core → Session → Router → Hub → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database (foundation layer)
	dbManager, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	// STEP 2: Connection registry doubles as the transport the core pushes through
	connections := websocket.NewRegistry()

	// STEP 3: Synchronization core
	objects := syncobj.NewRegistry(connections, cfg.Sync.QueueSize)

	defaults, err := permissions.NewDefaultLayerProvider(cfg.Permissions.Defaults)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to build default permissions: %w", err)
	}
	roles, err := permissions.NewRoleLayerProvider(dbManager, roleTable(cfg.Permissions), cfg.Permissions.DefaultRole)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to build role permissions: %w", err)
	}
	engine := permissions.NewEngine(objects, cfg.Permissions.ProviderTimeout, defaults, roles)

	whiteboards := whiteboard.NewManager(objects, whiteboard.Config{
		UndoDepth:           cfg.Whiteboard.UndoDepth,
		MaxObjectsPerAction: cfg.Whiteboard.MaxObjectsPerAction,
	})

	// STEP 4: Session manager fans lifecycle events out to the core
	// ARCHITECTURAL DISCOVERY: Registration order is initialization order.
	// The permission object must exist before the registry snapshots it on
	// join, and teardown runs in reverse.
	sessionManager := session.NewManager(dbManager, connections)

	rateLimiter := router.NewRateLimiter(cfg.RateLimit.CommandsPerSecond, cfg.RateLimit.Burst)
	messageRouter := router.NewRouter(engine, whiteboards, sessionManager, rateLimiter)

	sessionManager.AddMembershipListener(engine)
	sessionManager.AddMembershipListener(objects)
	sessionManager.AddMembershipListener(messageRouter)

	sessionManager.AddSessionListener(objects)
	sessionManager.AddSessionListener(engine)
	sessionManager.AddSessionListener(whiteboards)
	sessionManager.AddSessionListener(connections)

	if err := sessionManager.Restore(context.Background()); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to restore active sessions: %w", err)
	}

	// STEP 5: Command processing
	messageHub := hub.NewHub(messageRouter, connections, cfg.Hub.Workers, cfg.Hub.QueueSize)

	// STEP 6: HTTP surfaces
	apiServer := api.NewServer(api.Dependencies{
		Sessions:    sessionManager,
		Database:    dbManager,
		Connections: connections,
		Permissions: engine,
		State:       objects,
		Members:     sessionManager,
		Roles:       roles,
	})

	wsHandler := websocket.NewHandler(connections, sessionManager, messageHub)
	wsHandler.SetHeartbeat(cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		connections:    connections,
		objects:        objects,
		engine:         engine,
		whiteboards:    whiteboards,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		messageRouter:  messageRouter,
		messageHub:     messageHub,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle commands, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting Syncboard application on %s", app.httpServer.Addr)

	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	sweepCtx, stop := context.WithCancel(context.Background())
	app.stopSweep = stop
	app.sweepDone = make(chan struct{})
	go app.sweepRateLimiter(sweepCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		app.stopBackground()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Syncboard application started successfully")
		return nil
	case <-ctx.Done():
		app.stopBackground()
		return ctx.Err()
	}
}

// sweepRateLimiter drops limiter state of participants that went quiet
// without a clean leave
func (app *Application) sweepRateLimiter(ctx context.Context) {
	defer close(app.sweepDone)

	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := app.rateLimiter.Cleanup(limiterMaxIdle); removed > 0 {
				log.Printf("Rate limiter sweep: removed=%d remaining=%d", removed, app.rateLimiter.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}

func (app *Application) stopBackground() {
	if app.stopSweep != nil {
		app.stopSweep()
		<-app.sweepDone
		app.stopSweep = nil
	}
	if err := app.messageHub.Stop(); err != nil && err != hub.ErrHubNotRunning {
		log.Printf("Message hub shutdown error: %v", err)
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Syncboard application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.stopBackground()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Syncboard application shutdown complete")
	return nil
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}

// GetStats aggregates component statistics for diagnostics
func (app *Application) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"sessions":    app.sessionManager.GetStats(),
		"connections": app.connections.GetStats(),
		"objects":     app.objects.GetStats(),
		"permissions": app.engine.GetStats(),
		"whiteboards": app.whiteboards.GetStats(),
		"router":      app.messageRouter.GetStats(),
		"hub":         app.messageHub.GetStats(),
	}
}
