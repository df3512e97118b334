package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"clinic-scheduling-api/internal/config"
	"clinic-scheduling-api/internal/events"
	"clinic-scheduling-api/internal/handler"
	"clinic-scheduling-api/internal/middleware"
	"clinic-scheduling-api/internal/model"
	"clinic-scheduling-api/internal/schedule"
	"clinic-scheduling-api/internal/store"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping")
	}
	log.Info().Msg("connected to postgres")

	// run migrations
	if migration, err := os.ReadFile("db/migrations/001_init.sql"); err != nil {
		log.Warn().Err(err).Msg("migration file not found, skipping")
	} else if _, err := pool.Exec(context.Background(), string(migration)); err != nil {
		log.Warn().Err(err).Msg("migration")
	} else {
		log.Info().Msg("migration applied")
	}

	st := store.New(pool)
	sched := schedule.NewService(st, st, cfg.CancelCutoffMinutes)

	// event publisher is optional; the API runs fine without a broker
	var pub *events.Publisher
	if cfg.AmqpURL != "" {
		pub, err = events.NewPublisher(cfg.AmqpURL, cfg.AmqpExchange)
		if err != nil {
			log.Warn().Err(err).Msg("amqp unavailable, events disabled")
			pub = nil
		} else {
			defer pub.Close()
			log.Info().Str("exchange", cfg.AmqpExchange).Msg("event publishing enabled")
		}
	}

	h := handler.New(st, st, sched, cfg, pub, log)
	rl := middleware.NewRateLimiter(5, 10)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", middleware.RateLimit(rl), h.Register)
		authGroup.POST("/login", middleware.RateLimit(rl), h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.GET("/doctors", h.ListDoctors)
		authGroup.PUT("/:id", middleware.Auth(cfg.JWTSecret), h.UpdateUser)
		authGroup.GET("", middleware.Auth(cfg.JWTSecret), middleware.AllowTo(model.RoleDoctor), h.ListUsers)
		authGroup.GET("/:id", middleware.Auth(cfg.JWTSecret), middleware.AllowTo(model.RoleDoctor), h.GetUser)
	}

	appts := router.Group("/appointments", middleware.Auth(cfg.JWTSecret))
	{
		appts.POST("", middleware.AllowTo(model.RolePatient), h.CreateAppointment)
		appts.GET("", h.ListAppointments)
		appts.GET("/:id", h.GetAppointment)
		appts.PATCH("/:id", h.UpdateAppointment)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
