package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kilnworks/kiln/internal/agents"
	"github.com/kilnworks/kiln/internal/api"
	"github.com/kilnworks/kiln/internal/codegen"
	"github.com/kilnworks/kiln/internal/config"
	"github.com/kilnworks/kiln/internal/events"
	"github.com/kilnworks/kiln/internal/gateway"
	"github.com/kilnworks/kiln/internal/generator"
	"github.com/kilnworks/kiln/internal/registry"
	pgstore "github.com/kilnworks/kiln/internal/store"
	"github.com/kilnworks/kiln/internal/templates"
	"github.com/kilnworks/kiln/internal/ui"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Kiln...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/kiln.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Template engine
	engine, err := codegen.New()
	if err != nil {
		logger.Fatal("failed to build template engine", zap.Error(err))
	}

	// Definition store
	var gen *generator.Generator
	if cfg.Database.Postgres.DSN != "" {
		st, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without definition store", zap.Error(pgErr))
		} else {
			if mErr := st.Migrate(context.Background(), cfg.Paths.Migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			gen = generator.New(st, engine, logger)
			defer st.Close()
		}
	}

	// Deployment event bus
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := events.NewBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, deployment events disabled", zap.Error(busErr))
		} else {
			bus = b
			defer bus.Close()
		}
	}

	// Live agent registry, seeded with the built-in chart data agent
	reg := registry.New(logger)
	reg.Register(agents.NewChartDataGenerator())

	// UI components and dispatch
	dir := ui.NewDirectory()
	chartComponent := ui.NewChartVisualizer(reg, logger)
	dir.Register(chartComponent)
	if _, ok := reg.Lookup(ui.ChartAgentName); ok {
		reg.BindComponent(ui.ChartAgentName, chartComponent.ID)
		logger.Info("bound chart component to agent",
			zap.String("component", chartComponent.ID),
			zap.String("agent", ui.ChartAgentName))
	}

	gw := gateway.New(logger)
	dispatcher := ui.NewDispatcher(dir, gw, logger)
	gw.SetHandler(dispatcher.Handle)

	wsAdapter := gateway.NewWSAdapter(logger)
	gw.Register(wsAdapter)
	if err := gw.StartAll(context.Background()); err != nil {
		logger.Warn("some gateway adapters failed to start", zap.Error(err))
	}

	// Template file store
	tplStore := templates.NewFileStore(cfg.Paths.Templates)

	// Build HTTP handler
	handler := api.NewHandler(engine, gen, tplStore, reg, bus, wsAdapter,
		cfg.Paths.Sandbox, cfg.Paths.Agents, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Kiln listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Kiln...")
	srv.Shutdown(context.Background())
	gw.Close()
}
