package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type SettlementServiceConfig struct {
	Port        string
	PostgresCfg PostgresConfig
	RabbitMQCfg RabbitMQConfig
	RedisCfg    RedisConfig
	ChainCfg    ChainConfig
	OracleCfg   OracleConfig
	PipelineCfg PipelineConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RabbitMQConfig struct {
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ChainConfig holds everything the transaction orchestration layer needs to
// talk to the ledger.
type ChainConfig struct {
	RPCURL              string
	ChainID             int64
	PoolFactoryAddress  string
	SettlementAddress   string
	CapitalTokenAddress string
	PlatformAddress     string
	CustodyAPIBaseURL   string
	CustodyAPIKey       string
	CustodyAddress      string
	GasLimit            uint64
	Confirmations       int
	ConfirmTimeout      time.Duration
}

type OracleConfig struct {
	RequesterURLs      []string
	RequesterAPIKey    string
	VegetationSecret   string
	VegetationTokenTTL time.Duration
	VegetationLookback time.Duration
	PolicyServiceURL   string
	PolicyServiceKey   string
	AttestationURL     string
	Quorum             int
}

type PipelineConfig struct {
	RunInterval         time.Duration
	DamageThreshold     int
	WeatherWeightBps    int
	VegetationWeightBps int
	FetchWorkers        int
	FreshnessWindow     time.Duration
}

func New() *SettlementServiceConfig {
	return &SettlementServiceConfig{
		Port: getEnvOrDefault("PORT", "8086"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "settlement_service"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RabbitMQCfg: RabbitMQConfig{
			Username: getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password: getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:     getEnvOrDefault("RABBITMQ_HOST", "localhost"),
			Port:     getEnvOrDefault("RABBITMQ_PORT", "5672"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       0,
		},
		ChainCfg: ChainConfig{
			RPCURL:              getEnvOrDefault("CHAIN_RPC_URL", "http://localhost:8545"),
			ChainID:             getEnvInt64OrDefault("CHAIN_ID", 84532),
			PoolFactoryAddress:  getEnvOrDefault("POOL_FACTORY_ADDRESS", ""),
			SettlementAddress:   getEnvOrDefault("SETTLEMENT_ADDRESS", ""),
			CapitalTokenAddress: getEnvOrDefault("CAPITAL_TOKEN_ADDRESS", ""),
			PlatformAddress:     getEnvOrDefault("PLATFORM_WALLET_ADDRESS", ""),
			CustodyAPIBaseURL:   getEnvOrDefault("CUSTODY_API_URL", ""),
			CustodyAPIKey:       getEnvOrDefault("CUSTODY_API_KEY", ""),
			CustodyAddress:      getEnvOrDefault("CUSTODY_WALLET_ADDRESS", ""),
			GasLimit:            uint64(getEnvInt64OrDefault("GAS_LIMIT", 1500000)),
			Confirmations:       getEnvIntOrDefault("CONFIRMATIONS", 2),
			ConfirmTimeout:      getEnvDurationOrDefault("CONFIRM_TIMEOUT", 3*time.Minute),
		},
		OracleCfg: OracleConfig{
			RequesterURLs:      splitNonEmpty(getEnvOrDefault("ORACLE_REQUESTER_URLS", "")),
			RequesterAPIKey:    getEnvOrDefault("ORACLE_REQUESTER_API_KEY", ""),
			VegetationSecret:   getEnvOrDefault("VEGETATION_TOKEN_SECRET", ""),
			VegetationTokenTTL: getEnvDurationOrDefault("VEGETATION_TOKEN_TTL", 5*time.Minute),
			VegetationLookback: getEnvDurationOrDefault("VEGETATION_LOOKBACK", 14*24*time.Hour),
			PolicyServiceURL:   getEnvOrDefault("POLICY_SERVICE_URL", "http://localhost:8083"),
			PolicyServiceKey:   getEnvOrDefault("POLICY_SERVICE_API_KEY", ""),
			AttestationURL:     getEnvOrDefault("ATTESTATION_URL", ""),
			Quorum:             getEnvIntOrDefault("ORACLE_QUORUM", 2),
		},
		PipelineCfg: PipelineConfig{
			RunInterval:         getEnvDurationOrDefault("RUN_INTERVAL", time.Hour),
			DamageThreshold:     getEnvIntOrDefault("DAMAGE_THRESHOLD", 30),
			WeatherWeightBps:    getEnvIntOrDefault("WEATHER_WEIGHT_BPS", 6000),
			VegetationWeightBps: getEnvIntOrDefault("VEGETATION_WEIGHT_BPS", 4000),
			FetchWorkers:        getEnvIntOrDefault("FETCH_WORKERS", 5),
			FreshnessWindow:     getEnvDurationOrDefault("REPORT_FRESHNESS_WINDOW", time.Hour),
		},
	}
}

// Validate checks the configuration the orchestration layer cannot run
// without. A missing contract address is fatal at startup.
func (c *SettlementServiceConfig) Validate() error {
	required := map[string]string{
		"POOL_FACTORY_ADDRESS":  c.ChainCfg.PoolFactoryAddress,
		"SETTLEMENT_ADDRESS":    c.ChainCfg.SettlementAddress,
		"CAPITAL_TOKEN_ADDRESS": c.ChainCfg.CapitalTokenAddress,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("missing required configuration: %s", name)
		}
	}
	if len(c.OracleCfg.RequesterURLs) == 0 {
		return fmt.Errorf("missing required configuration: ORACLE_REQUESTER_URLS")
	}
	if c.OracleCfg.Quorum < 1 {
		return fmt.Errorf("ORACLE_QUORUM must be at least 1")
	}
	if c.ChainCfg.Confirmations < 1 {
		return fmt.Errorf("CONFIRMATIONS must be at least 1")
	}
	if c.PipelineCfg.WeatherWeightBps+c.PipelineCfg.VegetationWeightBps != 10000 {
		return fmt.Errorf("weather and vegetation weights must sum to 10000 basis points")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
