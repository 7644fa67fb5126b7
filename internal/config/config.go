// Package config loads and validates the Market Intelligence Engine's
// configuration surface (spec §6): LLM provider mode, agent selection
// rules, consensus thresholds, signal fusion weights, and external data
// source settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the whole configuration tree.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	NATS           NATSConfig           `mapstructure:"nats"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Agents         AgentsConfig         `mapstructure:"agents"`
	Consensus      ConsensusConfig      `mapstructure:"consensus"`
	AdvancedAgents AdvancedAgentsConfig `mapstructure:"advanced_agents"`
	SignalFusion   SignalFusionConfig   `mapstructure:"signal_fusion"`
	CostOptimization CostOptimizationConfig `mapstructure:"cost_optimization"`
	ExternalData   ExternalDataConfig   `mapstructure:"external_data"`
	API            APIConfig            `mapstructure:"api"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Vault          VaultConfig          `mapstructure:"vault"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings for the checkpoint store and
// audit log.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig contains settings for the external-data cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig contains settings for node-completion event publication.
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// ProviderConfig is one LLM provider's connection settings.
type ProviderConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	DefaultModel string  `mapstructure:"default_model"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Endpoint     string  `mapstructure:"endpoint"`
}

// LLMConfig selects the provider mode and carries per-provider settings.
// single_provider is one of {A,B,C,D,none}; "none" means multi-provider mode,
// where engine.BuildAdapters assigns the configured providers to agent
// kinds round-robin.
type LLMConfig struct {
	SingleProvider string                    `mapstructure:"single_provider"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
	TimeoutMs      int                       `mapstructure:"timeout_ms"`
	MaxRetries     int                       `mapstructure:"max_retries"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MultiProvider reports whether agents should be assigned distinct providers.
func (c LLMConfig) MultiProvider() bool {
	return c.SingleProvider == "" || c.SingleProvider == "none"
}

// AgentsConfig governs fan-out and the minimum viable signal count.
type AgentsConfig struct {
	TimeoutMs         int `mapstructure:"timeout_ms"`
	MinAgentsRequired int `mapstructure:"min_agents_required"`
}

func (c AgentsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ConsensusConfig carries the three independent thresholds from spec §9's
// Open Question: high_disagreement_threshold is the disagreement index at
// and above which the regime is high-uncertainty, the fail-threshold
// aborts consensus outright, and min_edge_threshold gates the
// efficient-market flag. The confidence band width depends only on
// band_width_k and the disagreement index; high_disagreement_threshold
// does not widen it.
type ConsensusConfig struct {
	MinEdgeThreshold          float64 `mapstructure:"min_edge_threshold"`
	HighDisagreementThreshold float64 `mapstructure:"high_disagreement_threshold"`
	FailThreshold             float64 `mapstructure:"fail_threshold"`
	BandWidthK                float64 `mapstructure:"band_width_k"`
}

// AdvancedAgentGroup toggles one agent group and its sub-flags.
type AdvancedAgentGroup struct {
	Enabled  bool            `mapstructure:"enabled"`
	SubFlags map[string]bool `mapstructure:"sub_flags"`
}

// AdvancedAgentsConfig is the configuration filter input for dynamic agent
// selection (spec §4.2 step 3).
type AdvancedAgentsConfig struct {
	EventIntelligence   AdvancedAgentGroup `mapstructure:"event_intelligence"`
	PollingStatistical  AdvancedAgentGroup `mapstructure:"polling_statistical"`
	SentimentNarrative  AdvancedAgentGroup `mapstructure:"sentiment_narrative"`
	PriceAction         PriceActionConfig  `mapstructure:"price_action"`
	EventScenario       AdvancedAgentGroup `mapstructure:"event_scenario"`
	RiskPhilosophy      AdvancedAgentGroup `mapstructure:"risk_philosophy"`
}

// PriceActionConfig is price_action's group config plus its data-availability
// gate (spec §4.2 step 4: "requires volume_24h >= min_volume_threshold").
type PriceActionConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	MinVolumeThreshold  float64 `mapstructure:"min_volume_threshold"`
}

// SignalFusionConfig carries the weighting and conflict-detection knobs
// consumed by internal/fusion.
type SignalFusionConfig struct {
	BaseWeights        map[string]float64            `mapstructure:"base_weights"`
	ContextAdjustments map[string]map[string]float64  `mapstructure:"context_adjustments"`
	ConflictThreshold  float64                        `mapstructure:"conflict_threshold"`
	AlignmentBonus     float64                        `mapstructure:"alignment_bonus"`
}

// CostOptimizationConfig governs the greedy cost-budget admission filter
// (spec §4.2 step 5).
type CostOptimizationConfig struct {
	MaxCostPerAnalysis   float64 `mapstructure:"max_cost_per_analysis"`
	SkipLowImpactAgents  bool    `mapstructure:"skip_low_impact_agents"`
	BatchLLMRequests     bool    `mapstructure:"batch_llm_requests"`
}

// ExternalSourceConfig is one source's (news/polling/social) fetch settings.
type ExternalSourceConfig struct {
	Provider string `mapstructure:"provider"`
	CacheTTL int    `mapstructure:"cache_ttl"`
	MaxItems int    `mapstructure:"max_items"`
}

func (c ExternalSourceConfig) TTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// ExternalDataConfig nests the three fetch sources.
type ExternalDataConfig struct {
	News    ExternalSourceConfig `mapstructure:"news"`
	Polling ExternalSourceConfig `mapstructure:"polling"`
	Social  ExternalSourceConfig `mapstructure:"social"`
}

// APIConfig contains the read-only introspection HTTP surface settings.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MonitoringConfig contains Prometheus settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// VaultConfig contains HashiCorp Vault settings for provider-key resolution.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
}

// Load loads configuration from file (if present) and environment
// variables prefixed MIE_, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MIE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "market-intelligence-engine")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "marketintel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enable_jetstream", false)

	v.SetDefault("llm.single_provider", "none")
	v.SetDefault("llm.timeout_ms", 30000)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("agents.timeout_ms", 20000)
	v.SetDefault("agents.min_agents_required", 2)

	v.SetDefault("consensus.min_edge_threshold", 0.05)
	v.SetDefault("consensus.high_disagreement_threshold", 0.15)
	v.SetDefault("consensus.fail_threshold", 0.30)
	v.SetDefault("consensus.band_width_k", 0.5)

	v.SetDefault("advanced_agents.event_intelligence.enabled", true)
	v.SetDefault("advanced_agents.polling_statistical.enabled", true)
	v.SetDefault("advanced_agents.sentiment_narrative.enabled", true)
	v.SetDefault("advanced_agents.price_action.enabled", true)
	v.SetDefault("advanced_agents.price_action.min_volume_threshold", 1000.0)
	v.SetDefault("advanced_agents.event_scenario.enabled", true)
	v.SetDefault("advanced_agents.risk_philosophy.enabled", true)

	v.SetDefault("signal_fusion.conflict_threshold", 0.20)
	v.SetDefault("signal_fusion.alignment_bonus", 0.20)

	v.SetDefault("cost_optimization.max_cost_per_analysis", 2.0)
	v.SetDefault("cost_optimization.skip_low_impact_agents", true)
	v.SetDefault("cost_optimization.batch_llm_requests", false)

	v.SetDefault("external_data.news.cache_ttl", 300)
	v.SetDefault("external_data.news.max_items", 20)
	v.SetDefault("external_data.polling.cache_ttl", 900)
	v.SetDefault("external_data.polling.max_items", 10)
	v.SetDefault("external_data.social.cache_ttl", 120)
	v.SetDefault("external_data.social.max_items", 50)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount", "secret")
}
