package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aminu222/tradelink-sub000/internal/assembler"
	"github.com/Aminu222/tradelink-sub000/internal/cache"
	"github.com/Aminu222/tradelink-sub000/internal/client"
	h "github.com/Aminu222/tradelink-sub000/internal/http"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/publisher"
	"github.com/Aminu222/tradelink-sub000/internal/repository"
	"github.com/Aminu222/tradelink-sub000/internal/service"
	"github.com/Aminu222/tradelink-sub000/pkg/logger"
)

type Config struct {
	Env               string
	HTTPPort          string
	MongoURI          string
	MongoDBName       string
	RedisAddr         string
	RedisPassword     string
	OrdersAPIURL      string
	PaymentGatewayURL string
	KafkaBrokers      []string
	TaxRate           string
	RequestTimeout    time.Duration
	UpstreamTimeout   time.Duration
	ShutdownTimeout   time.Duration
}

func loadConfig() *Config {
	return &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		OrdersAPIURL:      getEnv("ORDERS_API_URL", "http://localhost:5000"),
		PaymentGatewayURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:5100"),
		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		TaxRate:           getEnv("TAX_RATE", "0.08"),
		RequestTimeout:    30 * time.Second,
		UpstreamTimeout:   10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		log.Fatal("invalid TAX_RATE", zap.String("value", cfg.TaxRate), zap.Error(err))
	}
	policy := pricing.NewPolicy(taxRate, decimal.NewFromInt(2500), decimal.NewFromInt(5000), "NGN")

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	repo := repository.NewMongoRepository(mongoDB)
	log.Info("connected to MongoDB", zap.String("uri", cfg.MongoURI))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	log.Info("redis ping succeeded")

	cartCache := cache.NewRedisCache(redisClient)
	stores := service.NewStores(repo, cartCache, policy, log)

	ordersClient := client.NewOrdersClient(cfg.OrdersAPIURL, cfg.UpstreamTimeout, log)
	paymentClient := client.NewPaymentClient(cfg.PaymentGatewayURL, cfg.UpstreamTimeout, log)

	events := publisher.NewKafkaPublisher(log, cfg.KafkaBrokers...)
	defer events.Close()

	asm := assembler.NewAssembler(ordersClient, paymentClient, policy, events, log, cfg.UpstreamTimeout)

	cartHandler := h.NewCartHandler(stores, policy, cfg.RequestTimeout)
	checkoutHandler := h.NewCheckoutHandler(asm, stores, log, cfg.RequestTimeout)
	router := h.NewRouter(cartHandler, checkoutHandler, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("cart service starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	mongoDB.Client().Disconnect(ctx)
	log.Info("server exited")
}
