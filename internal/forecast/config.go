// Package forecast derives the working forecast row-set for a project.
//
// Exactly one of three tiers produces the cells for a run:
//  1. the server forecast, when it carries at least one positive cell
//  2. monthly allocations, grouped by canonical cost line and month
//  3. budget lines, with each total spread over its active months
//
// Tiers never merge. An all-zero server forecast counts as absent because it
// usually means the baseline has not been materialized yet.
//
// Example usage:
//
//	config := forecast.DefaultConfig()
//	config.Horizon = 36
//
//	deriver := forecast.NewDeriver(config, log)
//	result, err := deriver.Derive(input, taxonomy.NewResolver(table))
package forecast

import (
	"fmt"

	"forecast-reconciliation-service/internal/period"
)

// DefaultHorizon is the number of contract months budget lines are spread
// over when they carry no end month
const DefaultHorizon = 36

// Config holds the parameters of forecast derivation
type Config struct {
	// Horizon caps the active range of budget lines. Lines without an end
	// month run until the horizon.
	Horizon int `json:"horizon" mapstructure:"horizon"`

	// SuggestUnmapped adds closest-key suggestions for unmapped identifiers
	// to the diagnostics.
	SuggestUnmapped bool `json:"suggest_unmapped" mapstructure:"suggest_unmapped"`

	// MaxUnmappedSamples bounds the unmapped identifiers kept in diagnostics.
	// The count is always exact.
	MaxUnmappedSamples int `json:"max_unmapped_samples" mapstructure:"max_unmapped_samples"`
}

// DefaultConfig returns the default derivation configuration
func DefaultConfig() *Config {
	return &Config{
		Horizon:            DefaultHorizon,
		SuggestUnmapped:    true,
		MaxUnmappedSamples: 50,
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Horizon < period.MinMonth || c.Horizon > period.MaxMonth {
		return fmt.Errorf("horizon must be between %d and %d, got %d", period.MinMonth, period.MaxMonth, c.Horizon)
	}
	if c.MaxUnmappedSamples < 0 {
		return fmt.Errorf("max unmapped samples cannot be negative")
	}
	return nil
}
