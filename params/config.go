package params

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr string
	CORSOrigin string
}

type Data struct {
	Dir         string
	SymbolsFile string
	OrdersDir   string
	// ArchiveDir is the pebble tick-archive path. Empty disables archiving.
	ArchiveDir string
}

type Feed struct {
	TickIntervalMin time.Duration
	TickIntervalMax time.Duration
	// TickVariance bounds each generated price around the previous one.
	TickVariance float64
	// PriceVariance bounds accepted order prices around the reference price.
	PriceVariance float64
}

type Kafka struct {
	// Brokers empty disables the tick publisher.
	Brokers []string
	Topic   string
}

type Config struct {
	Server Server
	Data   Data
	Feed   Feed
	Kafka  Kafka
}

func Default() Config {
	dataDir := "./data"
	return Config{
		Server: Server{
			ListenAddr: ":3001",
			CORSOrigin: "http://localhost:3000",
		},
		Data: Data{
			Dir:         dataDir,
			SymbolsFile: filepath.Join(dataDir, "symbols.json"),
			OrdersDir:   filepath.Join(dataDir, "orders"),
			ArchiveDir:  filepath.Join(dataDir, "ticks"),
		},
		Feed: Feed{
			TickIntervalMin: 1000 * time.Millisecond,
			TickIntervalMax: 2000 * time.Millisecond,
			TickVariance:    0.05,
			PriceVariance:   0.20,
		},
		Kafka: Kafka{
			Topic: "feedsim.ticks",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables.
// Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		cfg.Server.CORSOrigin = origin
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
		cfg.Data.SymbolsFile = filepath.Join(dir, "symbols.json")
		cfg.Data.OrdersDir = filepath.Join(dir, "orders")
		cfg.Data.ArchiveDir = filepath.Join(dir, "ticks")
	}
	if f := os.Getenv("SYMBOLS_FILE"); f != "" {
		cfg.Data.SymbolsFile = f
	}
	if dir := os.Getenv("ORDERS_DIR"); dir != "" {
		cfg.Data.OrdersDir = dir
	}
	if dir := os.Getenv("TICK_ARCHIVE_DIR"); dir != "" {
		if dir == "off" {
			cfg.Data.ArchiveDir = ""
		} else {
			cfg.Data.ArchiveDir = dir
		}
	}

	if min := os.Getenv("TICK_INTERVAL_MIN_MS"); min != "" {
		if ms, err := strconv.Atoi(min); err == nil {
			cfg.Feed.TickIntervalMin = time.Duration(ms) * time.Millisecond
		}
	}
	if max := os.Getenv("TICK_INTERVAL_MAX_MS"); max != "" {
		if ms, err := strconv.Atoi(max); err == nil {
			cfg.Feed.TickIntervalMax = time.Duration(ms) * time.Millisecond
		}
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Kafka.Topic = topic
	}

	return cfg
}
