package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Annany2002/nebula-migrate/internal/logger"
	"github.com/joho/godotenv"
)

var (
	customLog = logger.NewLogger()
)

// Inspection modes for table listing, schema comparison and verification.
const (
	InspectRemote = "remote" // go through the migration backend
	InspectDirect = "direct" // query Postgres directly with pgx
)

// Config holds application configuration values
type Config struct {
	ServerPort     string
	JWTSecret      string
	JWTExpiration  time.Duration
	MetadataDbDir  string
	MetadataDbFile string

	// Migration backend
	NeonAPIURL       string
	APIURL           string
	ServerStarterURL string
	BackendAutostart bool
	HealthTimeout    time.Duration
	InspectMode      string

	// HTTP surface
	CORSAllowedOrigins []string
	AuthRateLimit      int
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	port := getEnv("SERVER_PORT", "8080")
	jwtSecret := os.Getenv("JWT_SECRET")
	jwtExpHoursStr := getEnv("JWT_EXPIRATION_HOURS", "24")
	dbDir := getEnv("DATABASE_DIRECTORY", "data")
	dbFile := getEnv("DATABASE_DIRECTORY_FILE", "metadata.db")

	// The browser build used VITE_* names; accept them so one .env serves both.
	neonAPIURL := getEnv("NEON_API_URL", getEnv("VITE_NEON_API_URL", "http://localhost:8000"))
	apiURL := getEnv("API_URL", getEnv("VITE_API_URL", "http://localhost:8000"))
	starterURL := getEnv("SERVER_STARTER_URL", "http://localhost:3002")
	inspectMode := strings.ToLower(getEnv("INSPECT_MODE", InspectRemote))

	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable must be set")
	}
	if inspectMode != InspectRemote && inspectMode != InspectDirect {
		customLog.Warnf("Invalid INSPECT_MODE '%s'. Using '%s'.", inspectMode, InspectRemote)
		inspectMode = InspectRemote
	}

	jwtExpHours, err := strconv.Atoi(jwtExpHoursStr)
	if err != nil || jwtExpHours <= 0 {
		customLog.Warnf("Invalid JWT_EXPIRATION_HOURS '%s'. Using default 24h. Error: %v", jwtExpHoursStr, err)
		jwtExpHours = 24
	}

	healthSecs, err := strconv.Atoi(getEnv("HEALTH_TIMEOUT_SECONDS", "3"))
	if err != nil || healthSecs <= 0 {
		customLog.Warnf("Invalid HEALTH_TIMEOUT_SECONDS. Using default 3s. Error: %v", err)
		healthSecs = 3
	}

	rateLimit, err := strconv.Atoi(getEnv("AUTH_RATE_LIMIT_PER_MINUTE", "5"))
	if err != nil || rateLimit <= 0 {
		customLog.Warnf("Invalid AUTH_RATE_LIMIT_PER_MINUTE. Using default 5. Error: %v", err)
		rateLimit = 5
	}

	autostart, err := strconv.ParseBool(getEnv("BACKEND_AUTOSTART", "true"))
	if err != nil {
		autostart = true
	}

	cfg := &Config{
		ServerPort:         strings.TrimPrefix(port, ":"),
		JWTSecret:          jwtSecret,
		JWTExpiration:      time.Hour * time.Duration(jwtExpHours),
		MetadataDbDir:      dbDir,
		MetadataDbFile:     dbFile,
		NeonAPIURL:         strings.TrimRight(neonAPIURL, "/"),
		APIURL:             strings.TrimRight(apiURL, "/"),
		ServerStarterURL:   strings.TrimRight(starterURL, "/"),
		BackendAutostart:   autostart,
		HealthTimeout:      time.Duration(healthSecs) * time.Second,
		InspectMode:        inspectMode,
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		AuthRateLimit:      rateLimit,
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, Backend: %s, Inspect: %s", cfg.ServerPort, cfg.NeonAPIURL, cfg.InspectMode)
	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
