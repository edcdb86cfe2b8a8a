package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"mdzgate/global/config"
	"mdzgate/logger"
	mid "mdzgate/middleware"
	"mdzgate/module/user"
	usersvc "mdzgate/module/user/service"
	"mdzgate/service/chat"
	"mdzgate/service/chat/handlers"
	"mdzgate/service/storage"
	storageredis "mdzgate/service/storage/redis"
	jwtsec "mdzgate/tools/security"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: redis when reachable, in-memory fallback for dev runs.
	var store storage.SessionStore
	if err := storageredis.InitRedis(storageredis.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}); err != nil {
		logger.Warnf("[main] redis unavailable (%v), using in-memory session store", err)
		store = storage.NewMemorySessionStore()
	} else {
		store = storage.NewRedisSessionStore(storageredis.GetRedis())
	}

	jwtOpts := jwtsec.DefaultOptions(cfg.JWTSecret)
	jwtOpts.TTL = cfg.TokenTTL

	mgr := chat.NewConnManager(store, chat.ManagerConf{
		SessionTTL: cfg.SessionTTL,
		SweepEvery: cfg.SweepInterval,
		StaleAfter: cfg.StaleAfter,
	}, cfg.NodeID)

	// The full dispatch table, assembled in one place.
	disp := chat.NewDispatcher()
	disp.Register(handlers.NewHeartbeatHandler())
	disp.Register(handlers.NewChatMessageHandler())
	disp.Register(handlers.NewContextUpdateHandler())
	disp.Register(handlers.NewPingHandler())

	ws := chat.NewServer(mgr, store, disp, jwtOpts, cfg.SessionTTL, nil)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", ws.HandleWS)

	// Accounts are optional: without DATABASE_URL the gateway still serves
	// tokens minted elsewhere with the same secret.
	var accounts *usersvc.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Errorf("[main] postgres connect failed: %v", err)
		} else {
			defer pool.Close()
			accounts = usersvc.NewStore(pool)
			if err := accounts.EnsureSchema(ctx); err != nil {
				logger.Warnf("[main] schema init: %v", err)
			}
			h := user.NewHandler(accounts, jwtOpts)
			mid.POST(r, "/api/v1/auth/register", h.Register, mid.RouteOpt{})
			mid.POST(r, "/api/v1/auth/login", h.Login, mid.RouteOpt{})
			mid.GET(r, "/api/v1/auth/me", h.Me, mid.RouteOpt{IsAuth: true, JWT: jwtOpts})
		}
	}

	r.GET("/healthz", healthHandler(accounts))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Infof("[main] gateway %s listening on %s", cfg.NodeID, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[main] http server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[main] http shutdown: %v", err)
	}
	mgr.Close()
	if err := storageredis.CloseRedis(); err != nil {
		logger.Warnf("[main] redis close: %v", err)
	}
}

func healthHandler(accounts *usersvc.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if storageredis.Initialized() {
			redisStatus = "ok"
			if err := storageredis.Ping(ctx); err != nil {
				redisStatus = "down"
			}
		}

		pgStatus := "disabled"
		if accounts != nil {
			pgStatus = "ok"
			if err := accounts.Ping(ctx); err != nil {
				pgStatus = "down"
			}
		}

		code := http.StatusOK
		if redisStatus == "down" || pgStatus == "down" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": "ok", "redis": redisStatus, "postgres": pgStatus})
	}
}
