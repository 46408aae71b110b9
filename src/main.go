package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/configs/database"
	"granite-vision-go/src/configs/server"
	"granite-vision-go/src/core/auth"
	"granite-vision-go/src/core/history"
	"granite-vision-go/src/core/utils"
	"granite-vision-go/src/core/watsonx"
	"granite-vision-go/src/vision"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

// services shared by the HTTP handlers
type services struct {
	tokens  *auth.TokenHolder
	client  *watsonx.Client
	history *history.Store
}

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// .config.yaml, falling back to config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("logger ready, config file: %s", configPath)

	return config, logger, nil
}

func buildServices(config *configs.Config, creds configs.Credentials, logger *utils.Logger) (*services, error) {
	authenticator := auth.NewAuthenticator(creds, auth.Options{
		InsecureSkipVerify: config.Watsonx.IAMInsecureSkipVerify,
	}, logger)
	tokens := auth.NewTokenHolder(authenticator, logger)
	client := watsonx.NewClient(watsonx.NewConfig(config.Watsonx, creds), tokens, logger)

	svc := &services{tokens: tokens, client: client}

	dsn := config.DatabaseURL()
	if dsn == "" {
		logger.Info("no database configured, history disabled")
		return svc, nil
	}
	db, dbType, err := database.InitDB(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store, err := history.NewStore(db)
	if err != nil {
		return nil, err
	}
	logger.Info("history enabled (%s)", dbType)
	svc.history = store
	return svc, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, svc *services, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// JSON routes live under /api
	apiGroup := router.Group("/api")

	cfgService := server.NewDefaultCfgService(config, logger, svc.history != nil)
	if err := cfgService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("cfg service failed to start: %v", err)
		return nil, err
	}

	visionService := vision.NewDefaultVisionService(config, logger, svc.tokens, svc.client, svc.history)
	if err := visionService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("vision service failed to start: %v", err)
		return nil, err
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: config.Web.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "Content-Disposition"},
	}).Handler(router)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: handler,
	}

	g.Go(func() error {
		logger.Info("HTTP server listening on http://0.0.0.0:%d", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			logger.Info("shutting down HTTP server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown failed: %v", err)
			} else {
				logger.Info("HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info("received %v, shutting down", sig)

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

func main() {
	// .env is optional; the process environment still applies
	envErr := godotenv.Load()

	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("failed to load config or logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	if envErr != nil {
		logger.Warn("no .env file found, using process environment")
	}

	creds, err := configs.LoadCredentials()
	if err != nil {
		logger.Error("missing credentials: %v", err)
		os.Exit(1)
	}

	svc, err := buildServices(config, creds, logger)
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartHttpServer(config, logger, svc, g, groupCtx); err != nil {
		logger.Error("failed to start HTTP server: %v", err)
		cancel()
		os.Exit(1)
	}

	GracefulShutdown(cancel, logger, g)

	logger.Info("exited")
}
