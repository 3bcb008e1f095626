package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full arena configuration.
type Config struct {
	Arena     ArenaConfig     `yaml:"arena"`
	Engine    EngineConfig    `yaml:"engine"`
	Protocols ProtocolsConfig `yaml:"protocols"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ArenaConfig controls the capital pool and the evolutionary loop.
type ArenaConfig struct {
	TotalCapital float64 `yaml:"total_capital"`
	StableFrac   float64 `yaml:"stable_frac"`
	ArenaFrac    float64 `yaml:"arena_frac"`
	ProvingFrac  float64 `yaml:"proving_frac"`

	ProvingStake float64 `yaml:"proving_stake"` // real capital on entering proving

	EvolutionIntervalSeconds int      `yaml:"evolution_interval_seconds"`
	Strategies               []string `yaml:"strategies"`
	SpawnBatch               int      `yaml:"spawn_batch"`
	MutateTopN               int      `yaml:"mutate_top_n"`
	MutationJitter           float64  `yaml:"mutation_jitter"`
	Seed                     int64    `yaml:"seed"` // 0 = time-seeded

	Fitness    FitnessConfig    `yaml:"fitness"`
	Graduation GraduationConfig `yaml:"graduation"`
	Kill       KillConfig       `yaml:"kill"`
}

// FitnessConfig holds the fitness score weights.
type FitnessConfig struct {
	ReturnWeight     float64 `yaml:"return_weight"`
	SharpeWeight     float64 `yaml:"sharpe_weight"`
	DrawdownWeight   float64 `yaml:"drawdown_weight"`
	VolatilityWeight float64 `yaml:"volatility_weight"`
	ConsistencyBonus float64 `yaml:"consistency_bonus"`
	ConsistencyFloor float64 `yaml:"consistency_floor"`
	MinHistory       int     `yaml:"min_history"`
}

// GraduationConfig gates tier promotions.
type GraduationConfig struct {
	MinFitness         float64 `yaml:"min_fitness"`
	MinSharpe          float64 `yaml:"min_sharpe"`
	MinWinRate         float64 `yaml:"min_win_rate"`
	MaxDrawdownProving float64 `yaml:"max_drawdown_proving"`
	MaxDrawdownActive  float64 `yaml:"max_drawdown_active"`
	MinAge             int     `yaml:"min_age"`
}

// KillConfig gates culling.
type KillConfig struct {
	NegativeFitnessDays int     `yaml:"negative_fitness_days"`
	MaxDrawdown         float64 `yaml:"max_drawdown"`
	NegativeReturnAge   int     `yaml:"negative_return_age"`
	MinSharpe           float64 `yaml:"min_sharpe"`
	MinSharpeAge        int     `yaml:"min_sharpe_age"`
	RetirementAge       int     `yaml:"retirement_age"`
}

// EngineConfig controls trade execution.
type EngineConfig struct {
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds"`
}

// ProtocolsConfig configures the venue adapters.
type ProtocolsConfig struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Lending    VenueConfig      `yaml:"lending"`
	Swap       VenueConfig      `yaml:"swap"`
}

// SimulationConfig tunes the simulated venue.
type SimulationConfig struct {
	SuccessRate  float64 `yaml:"success_rate"`
	MinLatencyMS int     `yaml:"min_latency_ms"`
	MaxLatencyMS int     `yaml:"max_latency_ms"`
	Seed         int64   `yaml:"seed"` // 0 = time-seeded
}

// VenueConfig configures one external venue.
type VenueConfig struct {
	Enabled    bool    `yaml:"enabled"`
	BaseURL    string  `yaml:"base_url"`
	ReqPerSec  float64 `yaml:"req_per_sec"`
	SigningKey string  `yaml:"-"` // from ARENA_SIGNING_KEY, never from YAML
}

// APIConfig configures the operator HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config plus a .env file if present. Env values
// override YAML for the keys that apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// EvolutionInterval returns the evolution cadence as a time.Duration.
func (c *Config) EvolutionInterval() time.Duration {
	return time.Duration(c.Arena.EvolutionIntervalSeconds) * time.Second
}

// ExecutionTimeout returns the per-trade execution budget.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Engine.ExecutionTimeoutSeconds) * time.Second
}

// applyEnvOverrides overrides values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ARENA_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	// Without a signing key the venue adapters run read-only.
	if v := os.Getenv("ARENA_SIGNING_KEY"); v != "" {
		cfg.Protocols.Lending.SigningKey = v
		cfg.Protocols.Swap.SigningKey = v
	}
}

// setDefaults fills required values with the arena defaults.
func setDefaults(cfg *Config) {
	a := &cfg.Arena
	if a.TotalCapital <= 0 {
		a.TotalCapital = 373261
	}
	if a.StableFrac <= 0 {
		a.StableFrac = 0.437
	}
	if a.ArenaFrac <= 0 {
		a.ArenaFrac = 0.536
	}
	if a.ProvingFrac <= 0 {
		a.ProvingFrac = 0.027
	}
	if a.ProvingStake <= 0 {
		a.ProvingStake = 1_000
	}
	if a.EvolutionIntervalSeconds <= 0 {
		a.EvolutionIntervalSeconds = 86_400
	}
	if len(a.Strategies) == 0 {
		a.Strategies = []string{"yield-farmer", "tactical-trader"}
	}
	if a.SpawnBatch <= 0 {
		a.SpawnBatch = 5
	}
	if a.MutateTopN <= 0 {
		a.MutateTopN = 3
	}
	if a.MutationJitter <= 0 {
		a.MutationJitter = 0.2
	}

	f := &a.Fitness
	if f.ReturnWeight == 0 && f.SharpeWeight == 0 && f.DrawdownWeight == 0 {
		f.ReturnWeight = 0.3
		f.SharpeWeight = 0.4
		f.DrawdownWeight = 0.2
		f.VolatilityWeight = 0.1
		f.ConsistencyBonus = 0.1
		f.ConsistencyFloor = 0.65
	}
	if f.MinHistory <= 0 {
		f.MinHistory = 7
	}

	g := &a.Graduation
	if g.MinFitness == 0 {
		g.MinFitness = 2.0
	}
	if g.MinSharpe == 0 {
		g.MinSharpe = 1.5
	}
	if g.MinWinRate == 0 {
		g.MinWinRate = 0.60
	}
	if g.MaxDrawdownProving == 0 {
		g.MaxDrawdownProving = -0.20
	}
	if g.MaxDrawdownActive == 0 {
		g.MaxDrawdownActive = -0.25
	}
	if g.MinAge <= 0 {
		g.MinAge = 30
	}

	k := &a.Kill
	if k.NegativeFitnessDays <= 0 {
		k.NegativeFitnessDays = 30
	}
	if k.MaxDrawdown == 0 {
		k.MaxDrawdown = -0.50
	}
	if k.NegativeReturnAge <= 0 {
		k.NegativeReturnAge = 90
	}
	if k.MinSharpe == 0 {
		k.MinSharpe = 0.5
	}
	if k.MinSharpeAge <= 0 {
		k.MinSharpeAge = 60
	}
	if k.RetirementAge <= 0 {
		k.RetirementAge = 365
	}

	if cfg.Engine.ExecutionTimeoutSeconds <= 0 {
		cfg.Engine.ExecutionTimeoutSeconds = 30
	}

	sim := &cfg.Protocols.Simulation
	if sim.SuccessRate <= 0 || sim.SuccessRate > 1 {
		sim.SuccessRate = 0.95
	}
	if sim.MinLatencyMS <= 0 {
		sim.MinLatencyMS = 50
	}
	if sim.MaxLatencyMS <= sim.MinLatencyMS {
		sim.MaxLatencyMS = 500
	}
	if cfg.Protocols.Lending.ReqPerSec <= 0 {
		cfg.Protocols.Lending.ReqPerSec = 5
	}
	if cfg.Protocols.Swap.ReqPerSec <= 0 {
		cfg.Protocols.Swap.ReqPerSec = 5
	}

	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "arena.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
