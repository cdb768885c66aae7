package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Vicktor007/WisePrice/internal/config"
	"github.com/Vicktor007/WisePrice/internal/http-server/handlers/cron"
	getProducts "github.com/Vicktor007/WisePrice/internal/http-server/handlers/products/get"
	getProduct "github.com/Vicktor007/WisePrice/internal/http-server/handlers/products/get_one"
	subscribeProduct "github.com/Vicktor007/WisePrice/internal/http-server/handlers/products/subscribe"
	trackProduct "github.com/Vicktor007/WisePrice/internal/http-server/handlers/products/track"
	unsubscribeProduct "github.com/Vicktor007/WisePrice/internal/http-server/handlers/products/unsubscribe"
	"github.com/Vicktor007/WisePrice/internal/lib/jwt"
	"github.com/Vicktor007/WisePrice/internal/mailer"
	"github.com/Vicktor007/WisePrice/internal/notifier"
	"github.com/Vicktor007/WisePrice/internal/rabbitmq"
	"github.com/Vicktor007/WisePrice/internal/reconciler"
	"github.com/Vicktor007/WisePrice/internal/scraper"
	"github.com/Vicktor007/WisePrice/internal/service/products"
	"github.com/Vicktor007/WisePrice/internal/storage/postgres"
	"github.com/Vicktor007/WisePrice/internal/storage/redis"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting wiseprice", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	jwtParser := jwt.New(cfg.JWTSecret)

	// * Инициализация Redis
	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Db, cfg.Redis.DefaultTTL)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// * Инициализация PosgreSQL
	postgresClient, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect posgtreSQL", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer postgresClient.Close()

	// * Инициализация RabbitMQ
	rabbitMQClient, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitMQ", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer rabbitMQClient.Close()

	rabbitMQProducer := rabbitmq.NewProducer(
		rabbitMQClient.Channel,
		cfg.RabbitMQ.QueueName,
	)
	rabbitMQConsumer := rabbitmq.NewConsumer(
		rabbitMQClient.Channel,
		log,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.WorkerPoolSize,
	)

	mailSender := mailer.New(cfg.SMTP, log)
	if err := mailSender.Run(ctx, rabbitMQConsumer); err != nil {
		log.Error("failed to start mail consumer", slog.String("err", err.Error()))
		os.Exit(1)
	}

	notifierClient := notifier.New(log, rabbitMQProducer, jwtParser, cfg.BaseURL)

	scraperClient := scraper.New(
		scraper.NewFetcher(cfg.Proxy, cfg.Reconciler.ItemTimeout),
	)

	reconcilerClient := reconciler.New(
		log,
		postgresClient,
		scraperClient,
		notifierClient,
		redisClient,
		cfg.Reconciler,
	)

	prodOP := products.New(
		log,
		postgresClient,
		redisClient,
		scraperClient,
		notifierClient,
		jwtParser,
	)

	requestValidator := validator.New()

	router := setupRouter(
		log,
		requestValidator,
		postgresClient,
		prodOP,
		reconcilerClient,
	)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.Reconciler.MaxDuration + cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.String("err", err.Error()))
	}

	log.Info("wiseprice stopped")
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	postgres *postgres.PostgresRepo,
	prodOP *products.ProductOperator,
	reconcilerClient *reconciler.Reconciler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/products", trackProduct.New(log, prodOP, validate))
	r.Get("/products", getProducts.New(log, postgres))
	r.Get("/products/product", getProduct.New(log, prodOP))
	r.Post("/products/subscribe", subscribeProduct.New(log, prodOP, validate))
	r.Get("/unsubscribe", unsubscribeProduct.New(log, prodOP))
	r.Get("/api/cron", cron.New(log, reconcilerClient))

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
