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

	"go-wa-campaign-api/src/infrastructure/config"
	"go-wa-campaign-api/src/infrastructure/di"
	"go-wa-campaign-api/src/infrastructure/helper"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/rest/middlewares"
	"go-wa-campaign-api/src/infrastructure/rest/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("error loading configuration: %w", err))
	}

	var loggerInstance *logger.Logger
	if cfg.IsDevelopment() {
		loggerInstance, err = logger.NewDevelopmentLogger()
	} else {
		loggerInstance, err = logger.NewLogger()
	}
	if err != nil {
		panic(fmt.Errorf("error initializing logger: %w", err))
	}
	defer func() {
		_ = loggerInstance.Log.Sync()
	}()

	loggerInstance.Info("Starting go-wa-campaign-api application", zap.String("env", cfg.Server.Environment))

	if err := helper.RegisterValidations(); err != nil {
		loggerInstance.Panic("Error registering validations", zap.Error(err))
	}

	appContext, err := di.SetupDependencies(cfg, loggerInstance)
	if err != nil {
		loggerInstance.Panic("Error initializing application context", zap.Error(err))
	}
	appContext.Start()

	router := setupRouter(cfg, appContext, loggerInstance)
	server := setupServer(router, cfg.Server)

	go func() {
		loggerInstance.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Panic("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	loggerInstance.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		loggerInstance.Error("Server forced to shutdown", zap.Error(err))
	}
	appContext.Shutdown()
	loggerInstance.Info("Server stopped")
}

func setupRouter(cfg *config.Config, appContext *di.ApplicationContext, logger *logger.Logger) *gin.Engine {
	if cfg.IsDevelopment() {
		logger.SetupGinWithZapLoggerInDevelopment()
	} else {
		logger.SetupGinWithZapLogger()
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.Use(middlewares.ErrorHandler())
	router.Use(middlewares.GinBodyLogMiddleware(logger))
	router.Use(middlewares.CommonHeaders)

	router.Use(logger.GinZapLogger())

	routes.ApplicationRouter(router, appContext)
	return router
}

func setupServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
