package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	// identity store: "postgres" or "memory"
	IdentityStore string
	DBURL         string
	DBMaxConns    int

	ResultsDir     string
	ExperimentsDir string
	ExperimentExt  string
	MaxResultBytes int64

	GeoIPDBPath        string
	RecommendedVersion string

	// results listing cache: "none", "memory" or "redis"
	ResultsCache    string
	ResultsCacheTTL time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	OTelEndpoint string

	AdminUsername string
	AdminPassword string
}

func Load() Config {
	// a missing .env is fine, the real environment still applies
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		IdentityStore: getEnv("IDENTITY_STORE", "postgres"),
		DBURL:         buildDBURL(),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),

		ResultsDir:     getEnv("RESULTS_DIR", "data/results"),
		ExperimentsDir: getEnv("EXPERIMENTS_DIR", "data/experiments"),
		ExperimentExt:  getEnv("EXPERIMENT_EXT", ".py"),
		MaxResultBytes: int64(getEnvInt("MAX_RESULT_BYTES", 32<<20)),

		GeoIPDBPath:        getEnv("GEOIP_DB_PATH", "data/maxmind.mmdb"),
		RecommendedVersion: getEnv("RECOMMENDED_VERSION", "0.1.0"),

		ResultsCache:    getEnv("RESULTS_CACHE", "memory"),
		ResultsCacheTTL: time.Duration(getEnvInt("RESULTS_CACHE_TTL_SECONDS", 5)) * time.Second,
		RedisAddr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "centinel")
	pass := getEnv("DB_PASSWORD", "centinel")
	name := getEnv("DB_NAME", "centinel")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %s=%q is not an integer, using %d\n", key, v, fallback)
			return fallback
		}

		return num
	}
	return fallback
}
