package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// DefaultsFile is the parsed shape of default-settings.json: the complete
// admin-maintained default configuration for every mode, the cross-mode
// defaults, and the safety defaults. The file is template-only; runtime
// settings live per-user in the durable store.
type DefaultsFile struct {
	Metadata          DefaultsMetadata       `json:"metadata"`
	GlobalTrading     GlobalTrading          `json:"global_trading"`
	ModeConfigs       map[string]*ModeConfig `json:"mode_configs"`
	CircuitBreaker    GlobalCircuitBreaker   `json:"circuit_breaker"`
	LLMConfig         LLMSettings            `json:"llm_config"`
	CapitalAllocation CapitalAllocation      `json:"capital_allocation"`
	SafetySettings    *SafetyDefaults        `json:"safety_settings,omitempty"`
	RiskIndex         RiskIndex              `json:"_settings_risk_index"`
}

// DefaultsMetadata holds version and update information for the file.
type DefaultsMetadata struct {
	Version       string `json:"version"`
	SchemaVersion int    `json:"schema_version"`
	LastUpdated   string `json:"last_updated"`
	UpdatedBy     string `json:"updated_by"`
	Description   string `json:"description"`
}

// SafetyDefaults holds the default safety settings for each mode.
type SafetyDefaults struct {
	UltraFast *SafetySettings `json:"ultra_fast,omitempty"`
	Scalp     *SafetySettings `json:"scalp,omitempty"`
	Swing     *SafetySettings `json:"swing,omitempty"`
	Position  *SafetySettings `json:"position,omitempty"`
}

// ForMode returns the safety defaults for a mode, or nil.
func (s *SafetyDefaults) ForMode(mode string) *SafetySettings {
	if s == nil {
		return nil
	}
	switch mode {
	case ModeUltraFast:
		return s.UltraFast
	case ModeScalp:
		return s.Scalp
	case ModeSwing:
		return s.Swing
	case ModePosition:
		return s.Position
	}
	return nil
}

// RiskIndex categorizes setting keys by how dangerous it is to loosen them.
// Display metadata only; not part of the cached key schema.
type RiskIndex struct {
	HighRiskSettings   []string `json:"high_risk_settings"`
	MediumRiskSettings []string `json:"medium_risk_settings"`
	LowRiskSettings    []string `json:"low_risk_settings"`
}

// Loader reads the defaults file from disk. It re-reads on every call so an
// admin edit is visible to the next change-detection pass; the admin
// defaults cache is the cheap path, the loader is the source of truth.
type Loader struct {
	path string
}

// NewLoader creates a loader for the given defaults file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the backing file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and parses the defaults file.
func (l *Loader) Load() (*DefaultsFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file %s: %w", l.path, err)
	}

	defaults := &DefaultsFile{}
	if err := json.Unmarshal(data, defaults); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", l.path, err)
	}

	log.Debug().
		Str("path", l.path).
		Str("version", defaults.Metadata.Version).
		Int("schema_version", defaults.Metadata.SchemaVersion).
		Msg("Loaded default settings")

	return defaults, nil
}

// Fingerprint computes the hex-encoded SHA-256 content fingerprint of a
// defaults structure. A single hash stands in for all 88 derived values:
// any field change anywhere in the structure changes the fingerprint.
func Fingerprint(defaults *DefaultsFile) string {
	data, _ := json.Marshal(defaults)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
