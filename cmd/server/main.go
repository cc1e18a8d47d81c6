package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/api/handlers"
	"github.com/feichai0017/elearning-factory/api/routes"
	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/agent"
	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/service/sketch"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

func main() {
	app, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(app.Logging.Level),
		logger.WithEncoding(app.Logging.Encoding),
		logger.WithOutputPaths(app.Logging.Outputs),
		logger.WithInitialField("service", "server"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caps, err := agent.NewCapabilities(ctx, agent.DefaultOptions(app), log)
	if err != nil {
		log.Fatal("Failed to initialize capabilities", logger.Error(err))
	}

	docService, closer, err := document.GetService(app, caps, log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}
	defer closer.Close()

	sketchService := sketch.NewService(caps.ImageGenerator(), caps.Chat(), sketch.Config{
		CriticModel: config.GetOpenAIConfig().CriticModel,
	}, log)

	uploads := validator.NewDocumentValidator(log, validator.NewConfig(
		app.Upload.MaxFileSize,
		app.Upload.MaxFiles,
		app.Upload.AllowedTypes,
	))

	h := handlers.NewHandlers(docService, sketchService, uploads, capabilityReport(app, caps), log)

	gin.SetMode(app.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, routes.Options{
		AllowedOrigins: app.Server.AllowedOrigins,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:        app.Server.Addr,
		Handler:     r,
		ReadTimeout: app.Server.ReadTimeout,
		// generation streams for minutes
		WriteTimeout: app.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", app.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}

// capabilityReport lists which remote services are usable, for /health.
func capabilityReport(app *config.AppConfig, caps *agent.Capabilities) map[string]bool {
	return map[string]bool{
		"chat":     caps.Chat() != nil,
		"ocr":      caps.Chat() != nil,
		"whisper":  caps.OpenAI != nil,
		"images":   caps.ImageGenerator() != nil,
		"textract": config.GetTextractConfig().Enabled(),
		"storage":  caps.Storage != nil,
		"jobs":     caps.Storage != nil && app.Session.Backend == "redis",
	}
}
