package config

import (
	"fmt"
	"math"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Appeal deadline fallbacks, used when no PayerConfig row exists.
	FirstLevelDeadlineDays     int `mapstructure:"FIRST_LEVEL_DEADLINE_DAYS"`
	SecondLevelDeadlineDays    int `mapstructure:"SECOND_LEVEL_DEADLINE_DAYS"`
	ExternalReviewDeadlineDays int `mapstructure:"EXTERNAL_REVIEW_DEADLINE_DAYS"`
	UrgentDeadlineDays         int `mapstructure:"URGENT_DEADLINE_DAYS"`

	// Recoverability scoring.
	RecoverabilityPrior     float64 `mapstructure:"RECOVERABILITY_PRIOR"`
	RecoverabilityThreshold float64 `mapstructure:"RECOVERABILITY_THRESHOLD"`

	// Claim risk factor weights. Must sum to 1.
	WeightHistoricalDenialRate float64 `mapstructure:"WEIGHT_HISTORICAL_DENIAL_RATE"`
	WeightPayerBehavior        float64 `mapstructure:"WEIGHT_PAYER_BEHAVIOR"`
	WeightProcedureComplexity  float64 `mapstructure:"WEIGHT_PROCEDURE_COMPLEXITY"`
	WeightAuthorization        float64 `mapstructure:"WEIGHT_AUTHORIZATION"`
	WeightCodingAccuracy       float64 `mapstructure:"WEIGHT_CODING_ACCURACY"`
	WeightTimingFactors        float64 `mapstructure:"WEIGHT_TIMING_FACTORS"`
	WeightDocumentation        float64 `mapstructure:"WEIGHT_DOCUMENTATION"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("FIRST_LEVEL_DEADLINE_DAYS", 60)
	v.SetDefault("SECOND_LEVEL_DEADLINE_DAYS", 60)
	v.SetDefault("EXTERNAL_REVIEW_DEADLINE_DAYS", 120)
	v.SetDefault("URGENT_DEADLINE_DAYS", 7)
	v.SetDefault("RECOVERABILITY_PRIOR", 0.5)
	v.SetDefault("RECOVERABILITY_THRESHOLD", 0.5)
	v.SetDefault("WEIGHT_HISTORICAL_DENIAL_RATE", 0.25)
	v.SetDefault("WEIGHT_PAYER_BEHAVIOR", 0.20)
	v.SetDefault("WEIGHT_PROCEDURE_COMPLEXITY", 0.15)
	v.SetDefault("WEIGHT_AUTHORIZATION", 0.15)
	v.SetDefault("WEIGHT_CODING_ACCURACY", 0.10)
	v.SetDefault("WEIGHT_TIMING_FACTORS", 0.08)
	v.SetDefault("WEIGHT_DOCUMENTATION", 0.07)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("FIRST_LEVEL_DEADLINE_DAYS")
	v.BindEnv("SECOND_LEVEL_DEADLINE_DAYS")
	v.BindEnv("EXTERNAL_REVIEW_DEADLINE_DAYS")
	v.BindEnv("URGENT_DEADLINE_DAYS")
	v.BindEnv("RECOVERABILITY_PRIOR")
	v.BindEnv("RECOVERABILITY_THRESHOLD")
	v.BindEnv("WEIGHT_HISTORICAL_DENIAL_RATE")
	v.BindEnv("WEIGHT_PAYER_BEHAVIOR")
	v.BindEnv("WEIGHT_PROCEDURE_COMPLEXITY")
	v.BindEnv("WEIGHT_AUTHORIZATION")
	v.BindEnv("WEIGHT_CODING_ACCURACY")
	v.BindEnv("WEIGHT_TIMING_FACTORS")
	v.BindEnv("WEIGHT_DOCUMENTATION")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is internally consistent.
// Deadline days must be positive, probabilities must stay inside (0,1),
// and the risk weights must sum to 1.
func (c *Config) Validate() error {
	if c.FirstLevelDeadlineDays <= 0 || c.SecondLevelDeadlineDays <= 0 || c.ExternalReviewDeadlineDays <= 0 {
		return fmt.Errorf("deadline days must be positive (first=%d second=%d external=%d)",
			c.FirstLevelDeadlineDays, c.SecondLevelDeadlineDays, c.ExternalReviewDeadlineDays)
	}
	if c.UrgentDeadlineDays <= 0 {
		return fmt.Errorf("URGENT_DEADLINE_DAYS must be positive, got %d", c.UrgentDeadlineDays)
	}
	if c.RecoverabilityPrior <= 0 || c.RecoverabilityPrior >= 1 {
		return fmt.Errorf("RECOVERABILITY_PRIOR must be strictly between 0 and 1, got %v", c.RecoverabilityPrior)
	}
	if c.RecoverabilityThreshold <= 0 || c.RecoverabilityThreshold >= 1 {
		return fmt.Errorf("RECOVERABILITY_THRESHOLD must be strictly between 0 and 1, got %v", c.RecoverabilityThreshold)
	}

	sum := c.WeightHistoricalDenialRate + c.WeightPayerBehavior + c.WeightProcedureComplexity +
		c.WeightAuthorization + c.WeightCodingAccuracy + c.WeightTimingFactors + c.WeightDocumentation
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1, got %v", sum)
	}
	return nil
}
