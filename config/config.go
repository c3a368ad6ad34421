// Package config loads greengrow settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	DB     DBConfig
	Server ServerConfig
}

type DBConfig struct {
	Driver string // sqlite or postgres
	Path   string // SQLite file
	DSN    string // PostgreSQL connection string; required for postgres
	Debug  bool
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    string // ulule formatted rate, e.g. "100-M"
	CORSOrigins  []string
}

// Load reads a .env file if present, then the environment.
// Precedence: explicit env var > .env file > default.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		DB: DBConfig{
			Driver: strings.ToLower(getEnv("GREENGROW_DB_DRIVER", DriverSQLite)),
			Path:   getEnv("GREENGROW_DB_PATH", "store.db"),
			DSN:    os.Getenv("DATABASE_DSN"),
			Debug:  parseBool("DB_DEBUG", false),
		},
		Server: ServerConfig{
			Addr:         serverAddr(),
			ReadTimeout:  parseSeconds("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: parseSeconds("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  parseSeconds("SERVER_IDLE_TIMEOUT", 60),
			RateLimit:    getEnv("RATE_LIMIT", "100-M"),
			CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
		},
	}
}

// serverAddr prefers GREENGROW_ADDR, then PORT.
func serverAddr() string {
	if addr := os.Getenv("GREENGROW_ADDR"); addr != "" {
		return addr
	}
	return ":" + getEnv("PORT", "8080")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("[config] invalid boolean for %s: %s", key, v)
			return def
		}
		return b
	}
	return def
}

func parseSeconds(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("[config] invalid seconds for %s: %s", key, v)
			return time.Duration(def) * time.Second
		}
		return time.Duration(n) * time.Second
	}
	return time.Duration(def) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
