package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Component configurations
	Store    StoreConfig    `json:"store"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	// Engine configuration
	Model      ModelConfig      `json:"model"`
	Graph      GraphConfig      `json:"graph"`
	RedFlags   RedFlagConfig    `json:"redFlags"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Assess     AssessConfig     `json:"assess"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelConfig locates the pre-trained classifier artifact.
type ModelConfig struct {
	// ArtifactPath is the JSON ensemble artifact loaded at startup.
	// A missing or invalid artifact is fatal for the whole engine.
	ArtifactPath string `json:"artifactPath"`
}

// GraphConfig holds every graph-pattern detector threshold. There are
// no hidden constants: each detector reads its bounds from here.
type GraphConfig struct {
	// ReferralWindowDays bounds the time window for referral edges.
	ReferralWindowDays int `json:"referralWindowDays"`

	// Kickback rings
	KickbackMinSharedPatients int     `json:"kickbackMinSharedPatients"`
	KickbackMinRingSize       int     `json:"kickbackMinRingSize"`
	KickbackBaseline          float64 `json:"kickbackBaseline"`

	// Identity theft
	IdentityWindowHours int     `json:"identityWindowHours"`
	IdentityBaseline    float64 `json:"identityBaseline"`

	// Ping-ponging
	PingPongMinRoundTrips int     `json:"pingPongMinRoundTrips"`
	PingPongBaseline      float64 `json:"pingPongBaseline"`

	// Family ganging
	FamilyMinPatients int     `json:"familyMinPatients"`
	FamilyBaseline    float64 `json:"familyBaseline"`

	// Equipment fraud
	EquipmentServiceWindowDays int     `json:"equipmentServiceWindowDays"`
	EquipmentBaseline          float64 `json:"equipmentBaseline"`

	// Hard traversal caps. On exceeding a cap the affected pattern
	// degrades to no-match for the batch; it never escalates.
	MaxDepth      int           `json:"maxDepth"`
	MaxMatches    int           `json:"maxMatches"`
	PatternBudget time.Duration `json:"patternBudget"`
}

// RedFlagConfig holds severity weights for the rule risk score.
// Weights must decrease monotonically from CRITICAL to LOW.
type RedFlagConfig struct {
	CriticalWeight float64 `json:"criticalWeight"`
	HighWeight     float64 `json:"highWeight"`
	MediumWeight   float64 `json:"mediumWeight"`
	LowWeight      float64 `json:"lowWeight"`

	// RuleCap bounds any single rule's contribution; ScoreCap bounds
	// the total risk score.
	RuleCap  float64 `json:"ruleCap"`
	ScoreCap float64 `json:"scoreCap"`
}

// AggregatorConfig holds the risk-fusion coefficients. The combination
// coefficients are calibration parameters; graph and rule evidence may
// only boost the classifier's base probability, never lower it.
type AggregatorConfig struct {
	GraphWeight float64 `json:"graphWeight"`
	RuleWeight  float64 `json:"ruleWeight"`

	// DecisionThreshold is the inclusive probability cutoff for a
	// positive fraud prediction.
	DecisionThreshold float64 `json:"decisionThreshold"`

	// DegradedConfidencePenalty is subtracted from the model
	// confidence when source data fell back to baselines. Confidence
	// never drops below 0.5.
	DegradedConfidencePenalty float64 `json:"degradedConfidencePenalty"`
}

// AssessConfig bounds the batch assessment run.
type AssessConfig struct {
	// Workers sizes the per-claim worker pool. Zero means NumCPU.
	Workers int `json:"workers"`

	// BatchTimeout bounds the whole assess call. Zero disables it.
	BatchTimeout time.Duration `json:"batchTimeout"`

	// TopRiskFactors bounds the ranked contribution list per claim.
	TopRiskFactors int `json:"topRiskFactors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-process cache + channel bus.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns a Community-tier configuration with calibrated
// default thresholds.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			ArtifactPath: "./models/fraud_ensemble.json",
		},
		Graph: GraphConfig{
			ReferralWindowDays:         365,
			KickbackMinSharedPatients:  3,
			KickbackMinRingSize:        3,
			KickbackBaseline:           10,
			IdentityWindowHours:        24,
			IdentityBaseline:           2,
			PingPongMinRoundTrips:      2,
			PingPongBaseline:           4,
			FamilyMinPatients:          2,
			FamilyBaseline:             4,
			EquipmentServiceWindowDays: 30,
			EquipmentBaseline:          3,
			MaxDepth:                   6,
			MaxMatches:                 1000,
			PatternBudget:              5 * time.Second,
		},
		RedFlags: RedFlagConfig{
			CriticalWeight: 0.40,
			HighWeight:     0.25,
			MediumWeight:   0.12,
			LowWeight:      0.05,
			RuleCap:        0.40,
			ScoreCap:       1.0,
		},
		Aggregator: AggregatorConfig{
			GraphWeight:               0.50,
			RuleWeight:                0.35,
			DecisionThreshold:         0.5,
			DegradedConfidencePenalty: 0.1,
		},
		Assess: AssessConfig{
			Workers:        0, // NumCPU
			BatchTimeout:   5 * time.Minute,
			TopRiskFactors: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a Pro-tier configuration backed by PostgreSQL,
// Redis, and NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Store = StoreConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
