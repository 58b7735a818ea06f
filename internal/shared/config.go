package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	MySQLDSN       string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	DedupeTTL      time.Duration
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	SubscribeRPS   float64
	SubscribeBurst int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric env value")
		}
		return def
	}
	secs := func(k string, def int) time.Duration { return time.Duration(atoi(k, def)) * time.Second }

	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		LogLevel:       env("LOG_LEVEL", "info"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ":9100"),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/newsletter?charset=utf8mb4"),
		DBMaxOpenConns: atoi("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: atoi("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:  secs("DB_CONN_MAX_LIFETIME_SECONDS", 300),
		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		DedupeTTL:      secs("DEDUPE_TTL_SECONDS", 600),
		RequestTimeout: secs("REQUEST_TIMEOUT_SECONDS", 15),
		ShutdownGrace:  secs("SHUTDOWN_GRACE_SECONDS", 10),
		SubscribeRPS:   atof("SUBSCRIBE_RPS", 20),
		SubscribeBurst: atoi("SUBSCRIBE_BURST", 40),
	}
	if c.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR is empty; subscriber dedupe cache disabled")
	}
	if c.DBMaxIdleConns > c.DBMaxOpenConns && c.DBMaxOpenConns > 0 {
		log.Warn().Int("idle", c.DBMaxIdleConns).Int("open", c.DBMaxOpenConns).Msg("DB_MAX_IDLE_CONNS exceeds DB_MAX_OPEN_CONNS; clamping")
		c.DBMaxIdleConns = c.DBMaxOpenConns
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
