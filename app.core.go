package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	store          Store
	redisClient    *redis.Client
	boltDBClient   *bolt.DB
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// SetupAppLogger builds the logger of the application on top of the rotating
// file writer. The returned cleanup flushes and closes the log file.
func SetupAppLogger(config *Config) (*zap.Logger, func()) {
	clock := NewClock(config.IsProduction)
	writer := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, writer, NewTickClock(clock))
	return logger, func() {
		if err := flusher(); err != nil {
			fmt.Println("error during flushing of logs: ", err)
		}
		if err := writer.Close(); err != nil {
			fmt.Println("error during closing of log file: ", err)
		}
	}
}

// OpenStore connects to the configured database and brings its schema up to date.
func OpenStore(ctx context.Context, config *Config, logger *zap.Logger) (Store, error) {
	if config.Database.Driver == DriverSQLite {
		if err := ensureParentFolder(sqliteFilePath(config.Database.DSN)); err != nil {
			return nil, fmt.Errorf("failed to create database folder: %w", err)
		}
	}

	db, err := GetSQLDB(&config.Database)
	if err != nil {
		return nil, err
	}
	store := NewSQLStore(logger, db, config.Database.Driver)
	if err = store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to reach the database: %w", err)
	}
	if err = store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate the database: %w", err)
	}
	return store, nil
}

// NewApp provides an instance of App.
func NewApp(config *Config) (*App, error) {
	logger, closer := SetupAppLogger(config)
	app := &App{logger: logger, config: config, cleanups: []func(){closer}}
	clock := NewClock(config.IsProduction)
	idsHandler := NewIDsHandler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := OpenStore(ctx, config, logger)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to setup the store: %s", err)
	}
	app.store = store
	app.cleanups = append([]func(){app.closeStore}, app.cleanups...)

	// Setup the connection to redis and boltDB servers.
	redisClient, err := GetRedisClient(config)
	if err != nil {
		_ = redisClient.Close()
		app.Clean()
		return nil, fmt.Errorf("failed to connect to redis server: %s", err)
	}
	app.redisClient = redisClient
	app.cleanups = append([]func(){app.closeRedis}, app.cleanups...)

	if err = ensureParentFolder(config.BoltDB.FilePath); err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to create boltDB folder: %s", err)
	}
	boltDBClient, err := GetBoltDBClient(config)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to connect to boltDB server: %s", err)
	}
	app.boltDBClient = boltDBClient
	app.cleanups = append([]func(){app.closeBoltDB}, app.cleanups...)

	archive := NewBoltLedgerArchive(logger, &config.BoltDB, boltDBClient)
	cache := NewRedisBookCache(logger, redisClient, config.Redis.CacheTTL)
	redisQueue := NewRedisQueue(redisClient, time.Second)
	boltDBConsumer := NewBoltDBConsumer(logger, redisQueue, archive)
	covers := NewLocalCoverStorage(&config.Uploads, clock)

	services := Services{
		Books:   NewBookService(logger, clock, store, cache, covers),
		Ledger:  NewBookTransactionService(logger, clock, idsHandler, store, cache, redisQueue),
		Auth:    NewAuthService(logger, clock, idsHandler, store.Users(), NewBcryptHasher(config.Auth.BcryptCost), NewJWTIssuer(&config.Auth)),
		Covers:  covers,
		Archive: archive,
	}

	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		idsHandler,
		services,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresPrivate, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public:  middlewaresPublic.Chain,
			private: middlewaresPrivate.Chain,
			ops:     middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
		ConnContext:    SaveConnInContext,
	}

	app.queueConsumers = []func(ctx context.Context) error{
		func(ctx context.Context) error {
			return boltDBConsumer.Consume(ctx, LedgerQueue)
		},
	}
	return app, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

func (app *App) closeStore() {
	if err := app.store.Close(); err != nil {
		app.logger.Error("failed to close the store", zap.Error(err))
	}
}

func (app *App) closeRedis() {
	if err := app.redisClient.Close(); err != nil {
		app.logger.Error("failed to close the redis client", zap.Error(err))
	}
}

func (app *App) closeBoltDB() {
	if err := app.boltDBClient.Close(); err != nil {
		app.logger.Error("failed to close the boltDB database", zap.Error(err))
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch err {
		case nil, http.ErrServerClosed:
			app.logger.Info("api server graceful shutdown succeeded")
		case context.DeadlineExceeded:
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			f := func() error {
				return consume(gCtx)
			}
			g.Go(f)
		}
		return nil
	}
}

// sqliteFilePath extracts the database file path from a sqlite dsn.
func sqliteFilePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

// ensureParentFolder creates the folder of the given file path if needed.
func ensureParentFolder(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o700)
}
