package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EngineConfig carries the core options the book recognizes.
type EngineConfig struct {
	Symbol              string  `yaml:"symbol"`
	SelfTradePrevention *bool   `yaml:"self_trade_prevention"` // default true
	MakerFeeRate        float64 `yaml:"maker_fee_rate"`
	TakerFeeRate        float64 `yaml:"taker_fee_rate"`
	LoggingEnabled      bool    `yaml:"logging_enabled"`
}

// SelfTradePreventionEnabled resolves the tri-state yaml field.
func (c *EngineConfig) SelfTradePreventionEnabled() bool {
	if c.SelfTradePrevention == nil {
		return true
	}
	return *c.SelfTradePrevention
}

// SimulatorConfig drives the demo simulator.
type SimulatorConfig struct {
	Steps           int     `yaml:"steps"`
	Seed            int64   `yaml:"seed"`
	StartPrice      float64 `yaml:"start_price"`
	Volatility      float64 `yaml:"volatility"`
	Spread          float64 `yaml:"spread"`
	MarketOrderProb float64 `yaml:"market_order_prob"`
}

// PersistenceConfig names the flat-file artifacts.
type PersistenceConfig struct {
	SnapshotFile string `yaml:"snapshot_file"`
	EventsFile   string `yaml:"events_file"`
}

type AppConfig struct {
	ServiceName string             `yaml:"service_name"`
	LogLevel    string             `yaml:"log_level"`
	MetricsAddr string             `yaml:"metrics_addr"`
	Engine      *EngineConfig      `yaml:"engine"`
	Simulator   *SimulatorConfig   `yaml:"simulator"`
	Persistence *PersistenceConfig `yaml:"persistence"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.ApplyDefaults()

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults; Load calls it, and
// callers that build an AppConfig directly should too.
func (c *AppConfig) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	if c.Engine.Symbol == "" {
		c.Engine.Symbol = "SIM"
	}
	if c.Simulator == nil {
		c.Simulator = &SimulatorConfig{}
	}
	if c.Simulator.Steps == 0 {
		c.Simulator.Steps = 1000
	}
	if c.Simulator.StartPrice == 0 {
		c.Simulator.StartPrice = 100.0
	}
	if c.Simulator.Volatility == 0 {
		c.Simulator.Volatility = 0.5
	}
	if c.Simulator.Spread == 0 {
		c.Simulator.Spread = 0.02
	}
	if c.Simulator.MarketOrderProb == 0 {
		c.Simulator.MarketOrderProb = 0.25
	}
	if c.Persistence == nil {
		c.Persistence = &PersistenceConfig{
			SnapshotFile: "book_snapshot.txt",
			EventsFile:   "book_events.csv",
		}
	}
}
