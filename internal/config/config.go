package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Shop        ShopConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Kafka       KafkaConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
	Service     ServiceConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
	OrdersPrefix  string
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type StorageConfig struct {
	Driver string
	// SeedFile is a JSON product fixture loaded into the catalog when Driver is memory.
	SeedFile string
}

// ShopConfig holds the pricing and listing knobs of the store front.
type ShopConfig struct {
	ShippingCost          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	DefaultCurrency       string
	DefaultPageSize       int
	MaxPageSize           int
	UserMaxPageSize       int
	CreateMaxAttempts     uint
}

type AuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type KafkaConfig struct {
	Brokers     []string
	OrdersTopic string
}

type IdempotencyConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

const (
	defaultHTTPPort              = 8080
	defaultShutdownGrace         = 15
	defaultOrdersPrefix          = "/api/v1/orders"
	defaultMigrationsPath        = "migrations"
	defaultAutoMigrate           = true
	defaultStorageDriver         = StorageDriverPostgres
	defaultShippingCost          = "100"
	defaultFreeShippingThreshold = "1000"
	defaultCurrency              = "TWD"
	defaultPageSize              = 20
	defaultMaxPageSize           = 100
	defaultUserMaxPageSize       = 50
	defaultCreateMaxAttempts     = 3
	defaultJWTIssuer             = "blogcommerce"
	defaultJWTTTL                = 24 * time.Hour
	defaultRateLimitRPS          = 2.0
	defaultRateLimitBurst        = 5
	defaultOrdersTopic           = "orders.events"
	defaultIdempotencyTTL        = 24 * time.Hour
	defaultPurgeInterval         = time.Hour
	defaultServiceName           = "blogcommerce-api"
	defaultServiceVersion        = "0.1.0"
	defaultEnvironment           = "development"
	defaultLogLevel              = "info"
	defaultOTelSampleRate        = 1.0
)

// Load reads configuration from environment variables, applying defaults when needed.
// A .env file in the working directory is loaded first; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	storageCfg, err := loadStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	shopCfg, err := loadShopConfig()
	if err != nil {
		return nil, fmt.Errorf("loading shop config: %w", err)
	}

	authCfg, err := loadAuthConfig()
	if err != nil {
		return nil, fmt.Errorf("loading auth config: %w", err)
	}

	rateCfg, err := loadRateLimitConfig()
	if err != nil {
		return nil, fmt.Errorf("loading rate limit config: %w", err)
	}

	idemCfg, err := loadIdempotencyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	return &Config{
		HTTP:        httpCfg,
		Database:    loadDatabaseConfig(),
		Storage:     storageCfg,
		Shop:        shopCfg,
		Auth:        authCfg,
		RateLimit:   rateCfg,
		Kafka:       loadKafkaConfig(),
		Idempotency: idemCfg,
		Telemetry:   telCfg,
		Service:     loadServiceConfig(),
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	prefix := "/" + strings.Trim(getEnvOrDefault("API_ORDERS_PREFIX", defaultOrdersPrefix), "/")
	if prefix == "/" {
		return HTTPConfig{}, errors.New("invalid API_ORDERS_PREFIX: must not be empty")
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
		OrdersPrefix:  prefix,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", defaultStorageDriver))
	switch driver {
	case StorageDriverPostgres, StorageDriverMemory:
		return StorageConfig{Driver: driver, SeedFile: os.Getenv("STORAGE_SEED_FILE")}, nil
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", driver, StorageDriverPostgres, StorageDriverMemory)
	}
}

func loadShopConfig() (ShopConfig, error) {
	shippingCost, err := getDecimalEnv("SHOP_SHIPPING_COST", defaultShippingCost)
	if err != nil {
		return ShopConfig{}, err
	}

	threshold, err := getDecimalEnv("SHOP_FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold)
	if err != nil {
		return ShopConfig{}, err
	}

	pageSize, err := getIntEnv("SHOP_DEFAULT_PAGE_SIZE", defaultPageSize)
	if err != nil {
		return ShopConfig{}, err
	}

	maxPageSize, err := getIntEnv("SHOP_MAX_PAGE_SIZE", defaultMaxPageSize)
	if err != nil {
		return ShopConfig{}, err
	}

	userMaxPageSize, err := getIntEnv("SHOP_USER_MAX_PAGE_SIZE", defaultUserMaxPageSize)
	if err != nil {
		return ShopConfig{}, err
	}

	attempts, err := getIntEnv("ORDER_CREATE_MAX_ATTEMPTS", defaultCreateMaxAttempts)
	if err != nil {
		return ShopConfig{}, err
	}

	if err := domain.ValidateAmount("SHOP_SHIPPING_COST", shippingCost); err != nil {
		return ShopConfig{}, fmt.Errorf("invalid shop config: %w", err)
	}
	if err := domain.ValidateAmount("SHOP_FREE_SHIPPING_THRESHOLD", threshold); err != nil {
		return ShopConfig{}, fmt.Errorf("invalid shop config: %w", err)
	}

	switch {
	case maxPageSize < 1 || userMaxPageSize < 1:
		return ShopConfig{}, errors.New("invalid page size bounds: must be at least 1")
	case pageSize < 1 || pageSize > maxPageSize:
		return ShopConfig{}, fmt.Errorf("invalid SHOP_DEFAULT_PAGE_SIZE: must be between 1 and %d", maxPageSize)
	case attempts < 1:
		return ShopConfig{}, errors.New("invalid ORDER_CREATE_MAX_ATTEMPTS: must be at least 1")
	}

	return ShopConfig{
		ShippingCost:          shippingCost,
		FreeShippingThreshold: threshold,
		DefaultCurrency:       getEnvOrDefault("SHOP_DEFAULT_CURRENCY", defaultCurrency),
		DefaultPageSize:       pageSize,
		MaxPageSize:           maxPageSize,
		UserMaxPageSize:       userMaxPageSize,
		CreateMaxAttempts:     uint(attempts),
	}, nil
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := getDurationEnv("JWT_TTL", defaultJWTTTL)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		Secret: os.Getenv("JWT_SECRET"),
		Issuer: getEnvOrDefault("JWT_ISSUER", defaultJWTIssuer),
		TTL:    ttl,
	}, nil
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	rps := defaultRateLimitRPS
	if value, ok := os.LookupEnv("RATE_LIMIT_RPS"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", value)
		}
		rps = parsed
	}

	burst, err := getIntEnv("RATE_LIMIT_BURST", defaultRateLimitBurst)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{RPS: rps, Burst: burst}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return KafkaConfig{
		Brokers:     brokers,
		OrdersTopic: getEnvOrDefault("KAFKA_ORDERS_TOPIC", defaultOrdersTopic),
	}
}

func loadIdempotencyConfig() (IdempotencyConfig, error) {
	ttl, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return IdempotencyConfig{}, err
	}

	interval, err := getDurationEnv("IDEMPOTENCY_PURGE_INTERVAL", defaultPurgeInterval)
	if err != nil {
		return IdempotencyConfig{}, err
	}

	return IdempotencyConfig{TTL: ttl, PurgeInterval: interval}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "blogcommerce")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return parsed, nil
}

func getDecimalEnv(key, defaultValue string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(getEnvOrDefault(key, defaultValue))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
