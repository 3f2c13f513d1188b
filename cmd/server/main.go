package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/api"
	"github.com/nguyentrongduc2005/chat-high-load/internal/bus"
	"github.com/nguyentrongduc2005/chat-high-load/internal/chat"
	"github.com/nguyentrongduc2005/chat-high-load/internal/config"
	"github.com/nguyentrongduc2005/chat-high-load/internal/gateway"
	"github.com/nguyentrongduc2005/chat-high-load/internal/ratelimit"
	"github.com/nguyentrongduc2005/chat-high-load/internal/stats"
	"github.com/nguyentrongduc2005/chat-high-load/internal/store"
	"github.com/redis/go-redis/v9"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	redisAddr      string
	redisPassword  string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address, empty for in-memory mode")
	flag.StringVar(&redisPassword, "redis-password", "", "redis password")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key for identity tokens")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, redisAddr, redisPassword, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	var (
		repo    store.ChatRepository
		limiter ratelimit.Limiter
	)

	// an empty redis address runs everything in process, useful for local
	// development but fanout stops at this instance
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisRepo, err := store.NewRedisChatRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.MessageIndexCap, cfg.RecentCacheCap)
		if err != nil {
			logger.Fatal("redis:", err)
		}
		repo = redisRepo

		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow)
	} else {
		repo = store.NewMemoryChatRepository(cfg.MessageIndexCap, cfg.RecentCacheCap)
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("repo close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := chat.NewService(logger, repo, nil, cfg.MaxMessageLength)

	gw := gateway.NewGateway(logger, svc, limiter, repo, statsUpdater, cfg.SigningKey)

	var eventBus bus.Bus
	if redisClient != nil {
		eventBus = bus.NewRedisBus(redisClient, gw.HandleBusEvent, logger)
	} else {
		eventBus = bus.NewLocalBus(gw.HandleBusEvent)
	}
	gw.SetBus(eventBus)
	svc.SetBus(eventBus)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Println("bus close:", err)
		}
	}()

	janitor := chat.NewJanitor(logger, repo, cfg.EventRetention, cfg.JanitorInterval)
	go janitor.Run()
	defer janitor.Stop()

	srv := api.NewServer(logger, svc, gw, cfg, mux)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	gw.Shutdown()
	logger.Println("shutdown complete")
}
