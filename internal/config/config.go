package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded from YAML with
// environment variable overrides.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Network  NetworkConfig  `yaml:"network"`
	Bundler  BundlerConfig  `yaml:"bundler"`
	Security SecurityConfig `yaml:"security"`
	Auth     AuthConfig     `yaml:"auth"`
	NATS     NATSConfig     `yaml:"nats"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig PostgreSQL settings
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NetworkConfig describes the single EVM network the relayer operates on.
type NetworkConfig struct {
	Name                 string   `yaml:"name"`
	ChainID              int64    `yaml:"chainId"`
	RPCURLs              []string `yaml:"rpcUrls"`
	TokenAddress         string   `yaml:"tokenAddress"`
	MinterAddress        string   `yaml:"minterAddress"`
	RedemptionAddress    string   `yaml:"redemptionAddress"`
	AchievementAddress   string   `yaml:"achievementAddress"`
	RelayerPrivateKey    string   `yaml:"relayerPrivateKey"`
	AuthorizerPrivateKey string   `yaml:"authorizerPrivateKey"`
	ExplorerTxURL        string   `yaml:"explorerTxUrl"`
}

// BundlerConfig ERC-4337 bundler service settings
type BundlerConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	AuthToken  string `yaml:"authToken"`
	EntryPoint string `yaml:"entryPoint"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// SecurityConfig request validation and throttling settings
type SecurityConfig struct {
	HMACSecret      string          `yaml:"hmacSecret"`
	AllowedChainIDs []int64         `yaml:"allowedChainIds"`
	RateLimits      RateLimitConfig `yaml:"rateLimits"`
}

// RateLimitConfig per-endpoint-class requests per window
type RateLimitConfig struct {
	WindowSeconds int `yaml:"windowSeconds"`
	Default       int `yaml:"default"`
	Mint          int `yaml:"mint"`
	HighRisk      int `yaml:"highRisk"`
	Status        int `yaml:"status"`
}

// AuthConfig user JWT settings
type AuthConfig struct {
	JWTSecret     string `yaml:"jwtSecret"`
	TokenTTLHours int    `yaml:"tokenTtlHours"`
	DevPassword   string `yaml:"devPassword"` // dev-mode only, empty disables password login
}

// NATSConfig optional event publishing settings
type NATSConfig struct {
	URL        string `yaml:"url"`
	Timeout    int    `yaml:"timeout"` // connect timeout in seconds
	StreamName string `yaml:"streamName"`
}

// CORSConfig CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin endpoint protection
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"`
	Username   string   `yaml:"username"`
	TOTPSecret string   `yaml:"totpSecret"`
	JWTSecret  string   `yaml:"jwtSecret"`
}

// AppConfig is the global configuration instance.
var AppConfig *Config

// LoadConfig reads the YAML config file, applies environment overrides and
// stores the result in AppConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Printf("✅ Loaded configuration from %s", path)
	} else {
		log.Printf("⚠️ No config file given, using defaults and environment variables")
	}

	cfg.overrideFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Network: NetworkConfig{
			Name:          "amoy",
			ChainID:       80002,
			ExplorerTxURL: "https://amoy.polygonscan.com/tx/{hash}",
		},
		Bundler: BundlerConfig{
			Timeout: 120,
		},
		Security: SecurityConfig{
			AllowedChainIDs: []int64{80002},
			RateLimits: RateLimitConfig{
				WindowSeconds: 60,
				Default:       5,
				Mint:          5,
				HighRisk:      3,
				Status:        30,
			},
		},
		Auth: AuthConfig{
			TokenTTLHours: 24,
		},
		CORS: CORSConfig{
			AllowCredentials: true,
			MaxAge:           3600,
		},
		Admin: AdminConfig{
			Username: "admin",
		},
	}
}

// overrideFromEnv applies environment variables on top of the file values.
// Environment always wins over YAML.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("RPC_URLS"); v != "" {
		c.Network.RPCURLs = splitAndTrim(v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Network.ChainID = id
		}
	}
	if v := os.Getenv("TOKEN_ADDRESS"); v != "" {
		c.Network.TokenAddress = v
	}
	if v := os.Getenv("MINTER_ADDRESS"); v != "" {
		c.Network.MinterAddress = v
	}
	if v := os.Getenv("REDEMPTION_ADDRESS"); v != "" {
		c.Network.RedemptionAddress = v
	}
	if v := os.Getenv("ACHIEVEMENT_ADDRESS"); v != "" {
		c.Network.AchievementAddress = v
	}
	if v := os.Getenv("RELAYER_PRIVATE_KEY"); v != "" {
		c.Network.RelayerPrivateKey = v
	}
	if v := os.Getenv("AUTHORIZER_PRIVATE_KEY"); v != "" {
		c.Network.AuthorizerPrivateKey = v
	}
	if v := os.Getenv("BUNDLER_BASE_URL"); v != "" {
		c.Bundler.BaseURL = v
	}
	if v := os.Getenv("BUNDLER_AUTH_TOKEN"); v != "" {
		c.Bundler.AuthToken = v
	}
	if v := os.Getenv("HMAC_SECRET"); v != "" {
		c.Security.HMACSecret = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("ADMIN_TOTP_SECRET"); v != "" {
		c.Admin.TOTPSecret = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.Admin.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		c.Admin.Username = v
	}
}

func (c *Config) validate() error {
	if len(c.Network.RPCURLs) == 0 {
		return fmt.Errorf("network.rpcUrls is required")
	}
	if c.Network.TokenAddress == "" {
		return fmt.Errorf("network.tokenAddress is required")
	}
	if c.Network.RelayerPrivateKey == "" {
		return fmt.Errorf("network.relayerPrivateKey is required (or RELAYER_PRIVATE_KEY env)")
	}
	return nil
}

// IsChainAllowed reports whether the given chain id is in the allowlist.
func (c *Config) IsChainAllowed(chainID int64) bool {
	for _, id := range c.Security.AllowedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
