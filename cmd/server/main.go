package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/sumire/clique/internal/cache"
	"github.com/sumire/clique/internal/config"
	"github.com/sumire/clique/internal/database"
	"github.com/sumire/clique/internal/handler"
	"github.com/sumire/clique/internal/metrics"
	"github.com/sumire/clique/internal/repository"
	"github.com/sumire/clique/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	slog.Info("database and redis connected")

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	verification := cache.NewVerification(rdb)

	sessions := service.NewSessionService(verification, service.SessionConfig{
		CookieName: cfg.TokenName,
		Secret:     cfg.TokenSecret,
		MaxAge:     cfg.TokenMaxAge,
	})
	captchaSvc := service.NewCaptchaService(cfg.Geetest, nil)
	smsSvc := service.NewSMSService(cfg.SMS, nil)
	authSvc := service.NewAuthService(userRepo, verification, captchaSvc, smsSvc, service.AuthConfig{
		SMSCodeTTL:       cfg.SMSCodeTTL,
		SMSRatePerMinute: cfg.SMSRatePerMinute,
	})
	oauthSvc := service.NewOAuthService(userRepo, cfg.Github, cfg.Weibo, nil)
	userSvc := service.NewUserService(userRepo, followRepo, cfg.UsernameMaxLength)

	authHandler := handler.NewAuthHandler(oauthSvc, sessions)
	userHandler := handler.NewUserHandler(authSvc, userSvc, captchaSvc, sessions)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(reg)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(collector.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", metrics.Handler(reg))

	e.GET("/signup.html", authHandler.SignupPage)
	e.GET("/signin.html", authHandler.SigninPage)
	e.GET("/users/signin/github.html", authHandler.GithubRedirect)
	e.GET("/users/signup/github.html", authHandler.GithubRedirect)
	e.GET("/users/auth/github/callback.html", authHandler.GithubCallback)
	e.GET("/users/signin/weibo.html", authHandler.WeiboRedirect)
	e.GET("/users/signup/weibo.html", authHandler.WeiboRedirect)
	e.GET("/users/auth/weibo/callback.html", authHandler.WeiboCallback)

	api := e.Group("/api/v1/users")
	api.GET("/geetestconfig", userHandler.GeetestConfig)
	api.POST("/smscode", userHandler.SendSMSCode)
	api.POST("/signup", userHandler.Signup)
	api.POST("/signin", userHandler.Signin)
	api.GET("/fuzzy", userHandler.Fuzzy)

	guarded := api.Group("", handler.SessionGuard(sessions))
	guarded.POST("/follow/:userID", userHandler.Follow)
	guarded.DELETE("/follow/:userID", userHandler.CancelFollow)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
