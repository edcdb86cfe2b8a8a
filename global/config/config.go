package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds everything the gateway node needs. Values come from the
// environment with hard defaults suitable for local development.
type AppConfig struct {
	NodeID string // 节点ID（参与日志与诊断）
	Port   int

	// Session store (redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration // SessionRecord 过期时间

	// Liveness sweep
	SweepInterval time.Duration
	StaleAfter    time.Duration // 超过该时长无心跳即判定为失活

	// Accounts (postgres)
	DatabaseURL string

	// Auth
	JWTSecret []byte
	TokenTTL  time.Duration
}

var Global = Default()

func Default() AppConfig {
	return AppConfig{
		NodeID:        "msg_gw-1",
		Port:          8080,
		RedisAddr:     "127.0.0.1:6379",
		RedisDB:       0,
		SessionTTL:    time.Hour,
		SweepInterval: 30 * time.Second,
		StaleAfter:    90 * time.Second,
		DatabaseURL:   "",
		JWTSecret:     []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="),
		TokenTTL:      7 * 24 * time.Hour,
	}
}

// Load overlays environment variables onto the defaults.
func Load() AppConfig {
	c := Default()
	c.NodeID = envStr("GATEWAY_ID", c.NodeID)
	c.Port = envInt("PORT", c.Port)
	c.RedisAddr = envStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	if s := os.Getenv("JWT_SECRET"); s != "" {
		c.JWTSecret = []byte(s)
	}
	if v := envInt("SESSION_TTL_SECONDS", 0); v > 0 {
		c.SessionTTL = time.Duration(v) * time.Second
	}
	if v := envInt("SWEEP_INTERVAL_SECONDS", 0); v > 0 {
		c.SweepInterval = time.Duration(v) * time.Second
	}
	if v := envInt("STALE_AFTER_SECONDS", 0); v > 0 {
		c.StaleAfter = time.Duration(v) * time.Second
	}
	Global = c
	return c
}

func GetJwtSecret() []byte {
	return Global.JWTSecret
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
