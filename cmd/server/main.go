// Command server is the composition root for the Pidro room server: it
// wires the pubsub fabric, game supervisor, bot manager, and room manager
// together, then hands the result to the HTTP/WebSocket transport.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pidro/roomserver/internal/auth"
	"github.com/pidro/roomserver/internal/bot"
	"github.com/pidro/roomserver/internal/config"
	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/health"
	"github.com/pidro/roomserver/internal/logging"
	"github.com/pidro/roomserver/internal/middleware"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/ratelimit"
	"github.com/pidro/roomserver/internal/roommanager"
	"github.com/pidro/roomserver/internal/seat"
	"github.com/pidro/roomserver/internal/transport"

	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// botManagerAdapter satisfies roommanager.BotManager by delegating to the
// bot manager's default-strategy entrypoint; replacement and practice-room
// bots always run the default random strategy.
type botManagerAdapter struct {
	mgr *bot.Manager
}

func (a botManagerAdapter) StartBot(code string, s seat.Seat, delayMs int) error {
	return a.mgr.StartBotDefault(code, s, delayMs)
}

func (a botManagerAdapter) StopBot(code string, s seat.Seat) error {
	return a.mgr.StopBot(code, s)
}

func (a botManagerAdapter) StopAllBots(code string) error {
	return a.mgr.StopAllBots(code)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logging.Info(ctx, "starting pidro room server", zap.String("go_env", cfg.GoEnv))

	pub := pubsub.New()
	rules := engine.Pidro{}
	games := game.NewSupervisor(pub, rules)
	bots := bot.NewManager(pub, games)

	roomCfg := roommanager.Config{
		ReplaceGrace:     cfg.ReplaceGrace(),
		RemovalGrace:     cfg.RemovalGrace(),
		CleanupGrace:     cfg.RoomCleanupGrace(),
		BotActionDelayMs: cfg.BotActionDelayMs,
	}
	rooms := roommanager.New(pub, games, botManagerAdapter{mgr: bots}, roomCfg)
	rooms.Run()
	defer rooms.Stop()

	var redisClient *redis.Client
	var redisBridge *pubsub.RedisBridge
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		bridge, err := pubsub.NewRedisBridge(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to construct redis bridge", zap.Error(err))
		}
		redisBridge = bridge
		go bridge.MirrorAll(ctx, pub, []pubsub.Topic{pubsub.LobbyUpdates})
		defer bridge.Close()
	}

	var validator transport.TokenValidator
	if cfg.SkipAuth || cfg.DevelopmentMode {
		validator = &auth.MockValidator{}
	} else {
		v, err := auth.NewValidator(cfg.JWTSecret)
		if err != nil {
			logging.Fatal(ctx, "failed to construct token validator", zap.Error(err))
		}
		validator = v
	}

	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient, validator)
	if err != nil {
		logging.Fatal(ctx, "failed to construct rate limiter", zap.Error(err))
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	if cfg.AllowedOrigins != "" {
		allowedOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}

	srv := transport.New(rooms, games, pub, validator, limiter, allowedOrigins)
	srv.Engine.Use(middleware.CorrelationID())
	srv.Engine.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.HeaderXCorrelationID},
		AllowCredentials: true,
	}))

	healthHandler := health.NewHandler(redisBridge)
	srv.Engine.GET("/health/live", healthHandler.Liveness)
	srv.Engine.GET("/health/ready", healthHandler.Readiness)
	srv.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Engine,
	}

	go func() {
		logging.Info(ctx, "listening", zap.String("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "graceful shutdown failed", zap.Error(err))
	}
}
