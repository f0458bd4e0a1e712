package blindspot

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration. Populated by LoadConfig from
// environment variables, with defaults for every clustering tunable.
var Config struct {
	OpenAIAPIKey string

	DBPath          string
	FeedsConfigPath string
	AgenciesCSVPath string

	Stage1Threshold          float64
	Stage2Threshold          float64
	MaxClusterSize           int
	MaxTimeWindowHours       int
	MinFeeds                 int
	ClusterMergeLookbackDays int

	PublishMinFeeds int
}

// LoadConfig fills Config from the environment. Every option has a default;
// OPENAI_API_KEY is only required by the embed and report commands, which
// check for it themselves.
func LoadConfig() {
	Config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	Config.DBPath = getEnvOrDefault("DB_PATH", "blindspot.db")
	Config.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG", "configs/feeds.yaml")
	Config.AgenciesCSVPath = getEnvOrDefault("AGENCIES_CSV", "data/seeds/news_agencies.csv")

	Config.Stage1Threshold = getEnvFloatOrDefault("STAGE1_THRESHOLD", 0.8)
	Config.Stage2Threshold = getEnvFloatOrDefault("STAGE2_THRESHOLD", 0.85)
	Config.MaxClusterSize = getEnvIntOrDefault("MAX_CLUSTER_SIZE", 10)
	Config.MaxTimeWindowHours = getEnvIntOrDefault("MAX_TIME_WINDOW_HOURS", 24)
	Config.MinFeeds = getEnvIntOrDefault("MIN_FEEDS", 2)
	Config.ClusterMergeLookbackDays = getEnvIntOrDefault("CLUSTER_MERGE_LOOKBACK_DAYS", 7)

	Config.PublishMinFeeds = getEnvIntOrDefault("PUBLISH_MIN_FEEDS", 8)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
