package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/agent"
	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/worker"
)

func main() {
	app, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(app.Logging.Level),
		logger.WithEncoding(app.Logging.Encoding),
		logger.WithOutputPaths(app.Logging.Outputs),
		logger.WithInitialField("service", "worker"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caps, err := agent.NewCapabilities(ctx, agent.DefaultOptions(app), log)
	if err != nil {
		log.Error("Failed to initialize capabilities", logger.Error(err))
		os.Exit(1)
	}

	docService, closer, err := document.GetService(app, caps, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer closer.Close()

	redisCfg := config.GetRedisConfig()
	workerCfg := &worker.Config{
		RedisAddr:       redisCfg.Addr,
		RedisPassword:   redisCfg.Password,
		RedisDB:         redisCfg.DB,
		Concurrency:     app.Queue.Concurrency,
		CleanupSchedule: app.Queue.CleanupSchedule,
	}

	documentWorker, err := worker.NewDocumentWorker(workerCfg, docService, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
