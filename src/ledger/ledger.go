package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stake-plus/govledger/src/ledger/config"
	"github.com/stake-plus/govledger/src/ledger/data"
	"github.com/stake-plus/govledger/src/ledger/metrics"
	"github.com/stake-plus/govledger/src/ledger/service"
	"github.com/stake-plus/govledger/src/ledger/state"
	"github.com/stake-plus/govledger/src/ledger/webserver"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func snapshotStore(cfg config.Config, rdb *redis.Client, lg *zap.Logger) (data.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case config.BackendMySQL:
		db, err := data.ConnectMySQL(cfg.MySQLDSN, lg)
		if err != nil {
			return nil, err
		}
		store, err := data.NewMySQLStore(db, "ledger", cfg.SnapshotKeep)
		if err != nil {
			return nil, err
		}
		return data.NewBreakerStore("mysql-snapshots", store, lg), nil
	case config.BackendRedis:
		return data.NewBreakerStore("redis-snapshots", data.NewRedisStore(rdb, cfg.SnapshotKey), lg), nil
	default:
		return data.NewFileStore(cfg.SnapshotPath), nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	lg, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	rdb, err := data.ConnectRedis(cfg.RedisURL)
	if err != nil {
		lg.Fatal("redis", zap.Error(err))
	}
	snaps, err := snapshotStore(cfg, rdb, lg)
	if err != nil {
		lg.Fatal("snapshot backend", zap.String("backend", cfg.SnapshotBackend), zap.Error(err))
	}

	m := metrics.NewCollector("ledger")
	ledger := service.New(state.NewStore(), snaps, lg.Named("ledger"), m,
		service.WithIdentityValidator(webserver.ValidateAddress))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, cancelStart := context.WithTimeout(ctx, 30*time.Second)
	err = ledger.OnStartup(startCtx)
	cancelStart()
	if err != nil {
		lg.Fatal("restore ledger", zap.Error(err))
	}
	go ledger.RunCheckpoints(ctx, cfg.CheckpointInterval())

	if lg.Core().Enabled(zapcore.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := webserver.New(cfg, webserver.Deps{
		Ledger:  ledger,
		Nonces:  data.NewRedisNonces(rdb),
		Metrics: m,
		Logger:  lg,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.EnableSSL {
			reloader, rerr := webserver.NewTLSReloader(cfg.SSLCert, cfg.SSLKey, lg.Named("tls"))
			if rerr != nil {
				lg.Fatal("tls", zap.Error(rerr))
			}
			if werr := reloader.Watch(ctx); werr != nil {
				lg.Warn("certificate hot reload disabled", zap.Error(werr))
			}
			httpSrv.TLSConfig = reloader.GetConfig()
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http", zap.Error(err))
		}
	}()
	lg.Info("govledger API listening",
		zap.String("port", cfg.Port),
		zap.Bool("tls", cfg.EnableSSL),
		zap.String("snapshots", cfg.SnapshotBackend))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if err := ledger.OnShutdown(shutCtx); err != nil {
		lg.Error("final snapshot failed", zap.Error(err))
	}
	_ = rdb.Close()
}
