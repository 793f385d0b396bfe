package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address         string `hcl:"address,optional"`
	Port            int    `hcl:"port,optional"`
	LogLevel        string `hcl:"log_level,optional"`
	Database        string `hcl:"database,optional"`
	JWTSecret       string `hcl:"jwt_secret,optional"`
	TokenTTLMinutes int    `hcl:"token_ttl_minutes,optional"`
	StartingBalance int64  `hcl:"starting_balance,optional"`
}

// TableConfig defines a table created at startup.
type TableConfig struct {
	Name       string `hcl:"name,label"`
	MaxPlayers int    `hcl:"max_players,optional"`
	SmallBlind int64  `hcl:"small_blind"`
	BigBlind   int64  `hcl:"big_blind"`
	BuyIn      int64  `hcl:"buy_in,optional"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:         "localhost",
			Port:            8080,
			LogLevel:        "info",
			Database:        "holdemd.db",
			JWTSecret:       "dev-secret-change-me",
			TokenTTLMinutes: 60 * 24,
			StartingBalance: 5000,
		},
		Tables: []TableConfig{
			{
				Name:       "main",
				MaxPlayers: 6,
				SmallBlind: 1,
				BigBlind:   2,
				BuyIn:      200,
			},
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to the
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.Database == "" {
		config.Server.Database = defaults.Server.Database
	}
	if config.Server.JWTSecret == "" {
		config.Server.JWTSecret = defaults.Server.JWTSecret
	}
	if config.Server.TokenTTLMinutes == 0 {
		config.Server.TokenTTLMinutes = defaults.Server.TokenTTLMinutes
	}
	if config.Server.StartingBalance == 0 {
		config.Server.StartingBalance = defaults.Server.StartingBalance
	}

	for i := range config.Tables {
		if config.Tables[i].MaxPlayers == 0 {
			config.Tables[i].MaxPlayers = 6
		}
		if config.Tables[i].BuyIn == 0 {
			config.Tables[i].BuyIn = config.Tables[i].BigBlind * 100
		}
	}

	return &config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must not be empty")
	}
	if c.Server.TokenTTLMinutes < 1 {
		return fmt.Errorf("token_ttl_minutes must be positive")
	}

	for _, table := range c.Tables {
		if table.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", table.Name)
		}
		if table.BigBlind <= table.SmallBlind {
			return fmt.Errorf("table %s: big blind must be greater than small blind", table.Name)
		}
		if table.MaxPlayers < 2 || table.MaxPlayers > 9 {
			return fmt.Errorf("table %s: max players must be between 2 and 9", table.Name)
		}
		if table.BuyIn < table.BigBlind {
			return fmt.Errorf("table %s: buy-in must cover at least the big blind", table.Name)
		}
	}
	return nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
