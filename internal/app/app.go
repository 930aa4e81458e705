package app

import (
	"context"
	"sync"

	"nexus/config"
	"nexus/internal/database"
	"nexus/internal/handlers/middleware"
	"nexus/internal/jobs"
	"nexus/internal/services"
	"nexus/internal/types"
	"nexus/internal/websockets"

	logger "github.com/Bparsons0904/goLogger"
)

const telemetryFeedBuffer = 256

type App struct {
	Database   database.DB
	Middleware middleware.Middleware
	Websocket  *websockets.Manager
	Config     config.Config
	Services   services.Service

	stopFeed context.CancelFunc
	feedWG   *sync.WaitGroup
}

type feedConsumer func(ctx context.Context, events <-chan types.TelemetryEvent)

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.New()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	return NewWithConfig(config)
}

// NewWithConfig wires the application from an already validated config
func NewWithConfig(config config.Config) (*App, error) {
	log := logger.New("app").Function("NewWithConfig")

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	services, err := services.New(db, config)
	if err != nil {
		return &App{}, log.Err("failed to create services", err)
	}

	if err := jobs.RegisterAllJobs(services.Scheduler, config, services); err != nil {
		return &App{}, log.Err("failed to register jobs", err)
	}

	var websocket *websockets.Manager
	if config.LiveFeedEnabled {
		websocket = websockets.New()
	}

	middleware := middleware.New(config, services.RateLimiter)

	app := &App{
		Database:   db,
		Config:     config,
		Middleware: middleware,
		Websocket:  websocket,
		Services:   services,
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	if a.Services.Validation == nil ||
		a.Services.RateLimiter == nil ||
		a.Services.LogWriter == nil ||
		a.Services.Aggregator == nil ||
		a.Services.LogRetention == nil ||
		a.Services.LogTail == nil ||
		a.Services.LogForwarder == nil ||
		a.Services.Scheduler == nil {
		return log.ErrMsg("nil check failed")
	}

	return nil
}

// Start runs the background workers: the job scheduler and, when the live feed or
// forwarding is enabled, the log tail feeding them.
func (a *App) Start(ctx context.Context) error {
	log := logger.New("app").TraceFromContext(ctx).Function("Start")

	if err := a.Services.Scheduler.Start(ctx); err != nil {
		return log.Err("failed to start scheduler", err)
	}

	var consumers []feedConsumer
	if a.Websocket != nil {
		consumers = append(consumers, a.Websocket.Consume)
	}
	if a.Services.LogForwarder.IsEnabled() {
		consumers = append(consumers, a.Services.LogForwarder.Run)
	}
	if len(consumers) == 0 {
		log.Info("No telemetry feed consumers, log tail not started")
		return nil
	}

	feedCtx, cancel := context.WithCancel(ctx)
	source := make(chan types.TelemetryEvent, telemetryFeedBuffer)
	if err := a.Services.LogTail.Run(feedCtx, source); err != nil {
		cancel()
		return log.Err("failed to start telemetry feed", err)
	}

	outputs := make([]chan types.TelemetryEvent, len(consumers))
	wg := &sync.WaitGroup{}
	for i, consume := range consumers {
		outputs[i] = make(chan types.TelemetryEvent, telemetryFeedBuffer)
		wg.Add(1)
		go func(consume feedConsumer, events <-chan types.TelemetryEvent) {
			defer wg.Done()
			consume(feedCtx, events)
		}(consume, outputs[i])
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		fanOut(feedCtx, source, outputs)
	}()

	a.stopFeed = cancel
	a.feedWG = wg

	log.Info("Telemetry feed started", "consumers", len(consumers))
	return nil
}

// fanOut copies every event to each output until ctx is done, then closes the outputs
func fanOut(
	ctx context.Context,
	source <-chan types.TelemetryEvent,
	outputs []chan types.TelemetryEvent,
) {
	defer func() {
		for _, output := range outputs {
			close(output)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-source:
			for _, output := range outputs {
				select {
				case output <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (a *App) Close() (err error) {
	if a.stopFeed != nil {
		a.stopFeed()
		a.Services.LogTail.Wait()
		a.feedWG.Wait()
	}

	if a.Websocket != nil {
		a.Websocket.Close()
	}

	if a.Services.Scheduler != nil {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
