package main

import (
	"Jarvis_RAG/backend/go/internal/rag_service/api"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	httpserver "Jarvis_RAG/backend/go/pkg/http"
	"Jarvis_RAG/backend/go/pkg/logger"
	"Jarvis_RAG/backend/go/pkg/ratelimiter"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// runServe 构建所有依赖并启动 HTTP 服务，ctx 结束时优雅关闭。
func runServe(ctx context.Context, configPath string, offline bool) error {
	cfg, err := loadConfig(configPath, offline)
	if err != nil {
		return err
	}
	if offline {
		cfg.Search.Backend = "memory"
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	log := logger.New(cfg.App.Name, "", "")

	a := newApp(cfg, log)
	defer a.close()

	svc, err := a.buildService(ctx, offline)
	if err != nil {
		log.WithError(err).Error("服务初始化失败")
		return err
	}

	if len(cfg.Databases.Etcd.Endpoints) > 0 && !offline {
		stop, err := a.register(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	rc := api.RouterConfig{
		JWTSecret:  cfg.Auth.JwtSecret,
		EmailClaim: cfg.Auth.EmailClaim,
		Metrics:    promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
		Observer:   a.metrics,
	}
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		rc.Limiter, err = ratelimiter.NewKeyed(rl.Rate, rl.Capacity, ratelimiter.DefaultMaxKeys, 10*time.Minute)
		if err != nil {
			return err
		}
	}
	router := api.SetupRouter(api.NewHandler(svc, log, a.checks), log, rc)

	server, err := httpserver.NewServer(cfg, router,
		httpserver.WithLogger(log.WithField("component", "http")),
		httpserver.WithBreakerObserver(func(name string, from, to circuitbreaker.State) {
			a.metrics.BreakerStateChanged(name, from, to)
			log.WithField("breaker", name).Warn("熔断器状态变化: " + from.String() + " -> " + to.String())
		}),
	)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.App.HTTPAddress).Info("HTTP 服务已启动")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.WithError(err).Error("HTTP 服务异常退出")
		return err
	case <-ctx.Done():
	}

	log.Info("收到退出信号，正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP 服务关闭失败")
		return err
	}
	log.Info("服务已退出")
	return nil
}
