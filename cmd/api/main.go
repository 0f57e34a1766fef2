package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "dronenav/internal/api"
    "dronenav/internal/buildinfo"
    "dronenav/internal/config"
    "dronenav/internal/logger"
    "dronenav/internal/runlog"
)

func main() {
    _ = godotenv.Load(".env")
    configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
    flag.Parse()

    cfg, err := config.Load(*configPath)
    if err != nil {
        logger.Setup().Error("config_error", "err", err)
        os.Exit(1)
    }
    l := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
    l.Info("starting", "build", buildinfo.String(), "db", cfg.Database.Driver)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    st, err := api.OpenStore(ctx, cfg.Database)
    if err != nil {
        l.Error("store_open_error", "err", err)
        os.Exit(1)
    }
    defer st.Close()

    srvDeps := api.NewServer(cfg, st, api.OpenBroker(ctx, cfg.Redis))
    if cfg.RunLog.Dir != "" {
        rl := runlog.NewWriter(cfg.RunLog.Dir, "runs")
        defer rl.Close()
        srvDeps.RunLog = rl
        l.Info("run_log_enabled", "dir", cfg.RunLog.Dir)
    }

    worker := srvDeps.NewWebhookWorker()
    worker.Start()
    l.Info("webhook_worker_started", "worker", worker.String())

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }
    go func() {
        l.Info("listening", "addr", cfg.Addr())
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            l.Error("server_error", "err", err)
            stop()
        }
    }()

    <-ctx.Done()
    l.Info("shutting_down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    close(worker.Stop)
    srvDeps.Shutdown()
}
