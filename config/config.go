package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Version is stamped at build time with -ldflags "-X puzzlebot/config.Version=...".
var Version = "dev"

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port           string
	BindAddress    string
	StorageDriver  string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisExistsTTL time.Duration
	AdminToken     string
	GatewaySecret  string
	LogLevel       string
	RecentWindow   time.Duration
	BcryptCost     int
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory are loaded first when the file exists; variables
// already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		BindAddress:    getEnv("BIND_ADDRESS", "localhost"),
		StorageDriver:  getEnv("STORAGE_DRIVER", StoragePostgres),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "puzzlebot"),
		DBPassword:     getEnv("DB_PASSWORD", "puzzlebot"),
		DBName:         getEnv("DB_NAME", "puzzlebot"),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisExistsTTL: getDuration("REDIS_EXISTS_TTL", time.Hour),
		AdminToken:     getEnv("ADMIN_TOKEN", ""),
		GatewaySecret:  getEnv("GATEWAY_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RecentWindow:   getDuration("RECENT_WINDOW", 24*time.Hour),
		BcryptCost:     getInt("BCRYPT_COST", 10),
	}
}

// Validate reports every missing or malformed required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required"))
	} else if len(c.AdminToken) > 72 {
		errs = append(errs, errors.New("ADMIN_TOKEN must be at most 72 bytes"))
	}
	if c.GatewaySecret == "" {
		errs = append(errs, errors.New("GATEWAY_SECRET is required"))
	}
	switch c.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.RecentWindow <= 0 {
		errs = append(errs, errors.New("RECENT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string {
	return c.BindAddress + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

// GormConfig is shared by InitDB and the storage tests so both see the same
// error translation.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	return client
}
