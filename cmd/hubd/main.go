package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/auth"
	"github.com/homehub/homehub/internal/config"
	"github.com/homehub/homehub/internal/dispatch"
	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/internal/host"
	"github.com/homehub/homehub/internal/info"
	"github.com/homehub/homehub/internal/ioconn"
	"github.com/homehub/homehub/internal/jsonrpc"
	"github.com/homehub/homehub/internal/lifecycle"
	"github.com/homehub/homehub/internal/mockintg"
	"github.com/homehub/homehub/internal/pairing"
	"github.com/homehub/homehub/internal/registry"
	"github.com/homehub/homehub/internal/server"
	"github.com/homehub/homehub/internal/store"
	"github.com/homehub/homehub/internal/things"
	"github.com/homehub/homehub/internal/version"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Map())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Map())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("homehub starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
	}

	// Open database.
	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "./data/homehub.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("component", "database"), zap.String("path", dbPath))

	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err), zap.String("binary_version", version.Short()))
	}

	// Shared services.
	bus := event.NewBus(logger.Named("event"))
	cat := catalog.New(logger.Named("catalog"))
	disp := dispatch.New(64, logger.Named("dispatch"))

	// Plugin registry: every ThingIntegration the hub ships is
	// registered here before Validate, the same compile-time
	// composition the teacher's own main.go uses for its modules.
	reg := registry.New(logger.Named("registry"))
	plugins := []integration.Plugin{
		mockintg.New(),
	}
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}
	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	h := host.New(reg, cat, db, bus, logger.Named("host"))
	if err := h.Migrate(context.Background()); err != nil {
		logger.Fatal("failed to migrate plugin host", zap.Error(err))
	}
	if err := h.LoadConfig(context.Background()); err != nil {
		logger.Fatal("failed to load plugin configuration", zap.Error(err))
	}
	// RegisterCatalogs before InitAll, so thing-class lookups made
	// during a plugin's own Init already see a complete catalog.
	h.RegisterCatalogs()

	thingsStore := things.New(db, cat, bus, logger.Named("things"))
	if err := thingsStore.Migrate(context.Background()); err != nil {
		logger.Fatal("failed to migrate thing store", zap.Error(err))
	}

	infoReg := info.NewRegistry(logger.Named("info"))

	pairingTTL := viperCfg.GetDuration("pairing.ttl")
	if pairingTTL == 0 {
		pairingTTL = 5 * time.Minute
	}
	pairingStore := pairing.New(pairingTTL, logger.Named("pairing"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp.Start(ctx)
	defer disp.Stop()

	engine := lifecycle.New(thingsStore, cat, h, infoReg, pairingStore, disp, nil, logger.Named("lifecycle"))
	thingManager := lifecycle.NewThingManager(engine, thingsStore, bus, logger.Named("thingmanager"))

	// Initialize plugins with their dependencies, including the
	// ThingManager every ThingIntegration needs to announce auto
	// things and report state/event changes.
	if err := reg.InitAll(ctx, func(name string) integration.Dependencies {
		pluginCfg := cfg.Sub("plugins." + name)
		return integration.Dependencies{
			Config:       pluginCfg,
			Logger:       logger.Named(name),
			Store:        db,
			Bus:          bus,
			Plugins:      reg,
			ThingManager: thingManager,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}
	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Revive persisted Things, then let auto-thing-creating plugins
	// start announcing new ones (spec.md §4.5's startup ordering).
	if err := thingsStore.Load(ctx); err != nil {
		logger.Fatal("failed to load things", zap.Error(err))
	}
	h.StartMonitoringAutoThings(ctx)

	maxLoopDepth := viperCfg.GetInt("ioconn.max_loop_depth")
	if maxLoopDepth == 0 {
		maxLoopDepth = 32
	}
	ioconnExecutor := &hostActionExecutor{cat: cat, host: h, infoReg: infoReg}
	ioconnEngine := ioconn.New(thingsStore, cat, ioconnExecutor, db, bus, maxLoopDepth, logger.Named("ioconn"))
	if err := ioconnEngine.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate ioconn engine", zap.Error(err))
	}
	if err := ioconnEngine.Load(ctx); err != nil {
		logger.Fatal("failed to load ioconnections", zap.Error(err))
	}
	ioconnEngine.Start()
	defer ioconnEngine.Stop()

	facade := jsonrpc.New(engine, cat, thingsStore, h, ioconnEngine, pairingStore, infoReg, nil, logger.Named("jsonrpc"))
	transport := jsonrpc.NewTransport(facade, logger.Named("jsonrpc"))
	transport.Subscribe(bus)

	jwtSecret := viperCfg.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("failed to generate JWT secret", zap.Error(err))
		}
		jwtSecret = hex.EncodeToString(b)
		logger.Info("using auto-generated JWT secret (normal for first run; set auth.jwt_secret in config to persist sessions across restarts)")
	}
	accessTTL := viperCfg.GetDuration("auth.access_token_ttl")
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	tokens := auth.NewTokenService([]byte(jwtSecret), accessTTL)
	authSvc := auth.NewService(tokens, viperCfg.GetString("auth.username"), viperCfg.GetString("auth.password_hash"), logger.Named("auth"))
	if viperCfg.GetString("auth.password_hash") == "" {
		logger.Warn("no auth.password_hash configured; API login is disabled until one is set")
	}

	addr := viperCfg.GetString("server.host") + ":" + viperCfg.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8080"
	}
	devMode := viperCfg.GetBool("server.dev_mode")
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})

	srv := server.New(addr, reg, logger.Named("server"), readyCheck, authSvc, nil, devMode, transport)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	logger.Info("homehub ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("homehub stopped")
}

// hostActionExecutor adapts the Lifecycle Engine's plugin resolution to
// ioconn.ActionExecutor: resolving the owning plugin for the output
// Thing's class and driving an ActionInfo round-trip through it, the
// same plugin-boundary pattern AddThing/ExecuteAction use.
type hostActionExecutor struct {
	cat     *catalog.Catalog
	host    *host.Host
	infoReg *info.Registry
}

func (a *hostActionExecutor) ExecuteAction(ctx context.Context, thing catalog.Thing, action catalog.Action) catalog.ThingError {
	cls, ok := a.cat.FindThingClass(thing.ThingClassID)
	if !ok {
		return catalog.ThingClassNotFound
	}
	ti, ok := a.host.ThingIntegration(cls.PluginID)
	if !ok {
		return catalog.PluginNotFound
	}
	actionInfo := a.infoReg.NewActionInfo(thing, action.ActionTypeID, action.Params, 0)
	ti.ExecuteAction(ctx, actionInfo)
	<-actionInfo.Done()
	return actionInfo.Status()
}
