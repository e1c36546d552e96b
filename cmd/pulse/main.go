package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/archive"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra/auth"
	"github.com/xela07ax/spaceai-agent-pulse/internal/monitor"
	"github.com/xela07ax/spaceai-agent-pulse/internal/persistence"
	"github.com/xela07ax/spaceai-agent-pulse/internal/repository/postgres"
	"github.com/xela07ax/spaceai-agent-pulse/internal/server"
	"github.com/xela07ax/spaceai-agent-pulse/internal/server/handler"
	"github.com/xela07ax/spaceai-agent-pulse/internal/server/service"
)

func main() {
	// 1. Конфигурация и логгер (до логгера ошибки уходят в stdlib log)
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Метрики самого монитора (отдельный реестр, отдельный листенер)
	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg)

	// 3. Персистентность (опциональна): зеркало состояния в Redis.
	// Пустой addr — штатный режим "только память".
	var backend persistence.Backend
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		backend = persistence.NewRedisBackend(rdb, logger)

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := backend.Ping(pingCtx); err != nil {
			// Не фатально: предохранитель откроется, монитор живет в памяти
			logger.Warn("persistence backend unreachable, starting memory-only", zap.Error(err))
		}
		cancel()
	} else {
		backend = persistence.NewNoopBackend()
		logger.Info("state mirror disabled: redis address is not configured")
	}

	mirror := persistence.NewMirror(backend,
		cfg.Monitor.MirrorBufferSize, cfg.Monitor.MirrorFlushInterval,
		metrics.PersistenceDrops, logger)
	mirror.Start()

	// 4. Архив терминальных задач (опционален): Postgres, пишем пачками
	var taskArchiver monitor.TaskArchiver = archive.NewNoop()
	var archiveWriter *archive.Writer
	var archiveRepo *postgres.ArchiveRepo
	if cfg.Database.URL != "" {
		archiveRepo, err = postgres.NewArchiveRepo(cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal("failed to open task archive", zap.Error(err))
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := archiveRepo.Ping(pingCtx); err != nil {
			logger.Warn("task archive unreachable at startup, batches will be retried", zap.Error(err))
		}
		cancel()

		archiveWriter = archive.NewWriter(archiveRepo,
			cfg.Monitor.ArchiveBatchSize, cfg.Monitor.ArchiveFlushInterval, logger)
		archiveWriter.Start()
		taskArchiver = archiveWriter
	} else {
		logger.Info("task archive disabled: database url is not configured")
	}

	// 5. Ядро мониторинга (Store -> Evaluator -> Recorder -> Sampler)
	store := monitor.NewStore(logger)
	prices := monitor.NewPriceTable()
	alertSignal := persistence.NewAlertPublisher(backend, logger)
	evaluator := monitor.NewEvaluator(cfg.Monitor.Thresholds, cfg.Monitor.AlertRetention,
		alertSignal, metrics, logger)
	recorder := monitor.NewRecorder(store, prices, evaluator, mirror, taskArchiver,
		metrics, cfg.Monitor.Thresholds.ErrorRate, logger)

	// 6. Восстановление состояния после рестарта (если зеркало включено).
	// Задачи, бывшие running, примиряются: процесс-владелец уже не ответит.
	if cfg.Redis.Addr != "" {
		loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		agents, tasks, err := backend.LoadState(loadCtx)
		cancel()
		switch {
		case err != nil:
			logger.Warn("state restore skipped: backend unavailable", zap.Error(err))
		case len(agents)+len(tasks) > 0:
			recorder.Restore(agents, tasks)
		}
	}

	probe := monitor.NewHostProbe(logger)
	sampler := monitor.NewSampler(store, probe, cfg.Monitor.MetricsRetention, metrics, logger)
	assembler := monitor.NewAssembler(store, sampler, evaluator,
		cfg.Monitor.RecentTasksLimit, cfg.Monitor.HistoryDefaultHours)

	// 7. Планировщик фонового цикла: sweep + срез + пороги, полуночный ретеншен
	scheduler := monitor.NewScheduler(store, recorder, sampler, evaluator, cfg.Monitor, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	// Первый срез сразу: дашборд не должен быть пустым до первого тика
	scheduler.RunTickNow()

	// 8. Auth (RS256): ключи обязательны — API монитора всегда за периметром
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)
	authService := service.NewAuthService(cfg.Auth.Operators, validator, privateKey,
		cfg.Auth.TokenTTL, logger)

	// 9. HTTP API (Dependency Injection хэндлеров)
	authHandler := handler.NewAuthHandler(authService, logger)
	agentHandler := handler.NewAgentHandler(recorder, logger)
	taskHandler := handler.NewTaskHandler(recorder, logger)
	dashHandler := handler.NewDashboardHandler(assembler, sampler, cfg.Monitor.HistoryDefaultHours)
	alertHandler := handler.NewAlertHandler(evaluator, logger)
	liveHandler := handler.NewLiveHandler(assembler, cfg.Monitor.LivePushInterval, logger)

	pulseAPI := server.NewPulseServer(cfg, logger, authService,
		authHandler, agentHandler, taskHandler, dashHandler, alertHandler, liveHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      pulseAPI,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 10. Экспорт метрик для Prometheus (отдельный порт, вне основного API)
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics listener started", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("pulse monitor started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("pulse monitor stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	// Порядок важен: сначала останавливаем продюсеров записей (планировщик),
	// потом дожимаем буферы зеркала и архива, и только затем рвем соединения
	scheduler.Stop()
	mirror.Stop()
	if archiveWriter != nil {
		archiveWriter.Stop()
		_ = archiveRepo.Close()
	}
	if err := backend.Close(); err != nil {
		logger.Warn("backend close failed", zap.Error(err))
	}

	logger.Info("pulse monitor exited properly")
}
