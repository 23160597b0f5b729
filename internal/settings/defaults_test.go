package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefaults() *DefaultsFile {
	return &DefaultsFile{
		Metadata: DefaultsMetadata{Version: "1.0.0", SchemaVersion: 1},
		GlobalTrading: GlobalTrading{
			RiskLevel:        "moderate",
			MaxUSDAllocation: 1500,
			Timezone:         "UTC",
		},
		ModeConfigs: map[string]*ModeConfig{
			ModeScalp: {
				ModeName: ModeScalp,
				Enabled:  true,
				Risk:     &RiskConfig{RiskLevel: "moderate"},
			},
		},
		CircuitBreaker:    GlobalCircuitBreaker{Enabled: true, MaxDailyLoss: 100},
		LLMConfig:         LLMSettings{Enabled: true, Provider: "anthropic"},
		CapitalAllocation: CapitalAllocation{ScalpPercent: 100},
		SafetySettings: &SafetyDefaults{
			Scalp: &SafetySettings{Mode: ModeScalp, MaxTradesPerMinute: 5},
		},
	}
}

func writeDefaults(t *testing.T, path string, d *DefaultsFile) {
	t.Helper()
	data, err := json.MarshalIndent(d, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default-settings.json")
	writeDefaults(t, path, sampleDefaults())

	loader := NewLoader(path)
	assert.Equal(t, path, loader.Path())

	d, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", d.Metadata.Version)
	require.Contains(t, d.ModeConfigs, ModeScalp)
	assert.True(t, d.ModeConfigs[ModeScalp].Enabled)
	assert.Equal(t, 5, d.SafetySettings.ForMode(ModeScalp).MaxTradesPerMinute)
}

// TestLoader_SeesFileEdits verifies the loader re-reads on every call, so
// an edited file is picked up without a restart.
func TestLoader_SeesFileEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default-settings.json")
	writeDefaults(t, path, sampleDefaults())

	loader := NewLoader(path)
	d, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "moderate", d.ModeConfigs[ModeScalp].Risk.RiskLevel)

	edited := sampleDefaults()
	edited.ModeConfigs[ModeScalp].Risk.RiskLevel = "aggressive"
	writeDefaults(t, path, edited)

	d, err = loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "aggressive", d.ModeConfigs[ModeScalp].Risk.RiskLevel)
}

func TestLoader_MissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":`), 0o644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(sampleDefaults())
	b := Fingerprint(sampleDefaults())
	assert.Equal(t, a, b, "identical content always fingerprints identically")
	assert.Len(t, a, 64, "hex-encoded SHA-256")
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	base := Fingerprint(sampleDefaults())

	edited := sampleDefaults()
	edited.ModeConfigs[ModeScalp].Risk.RiskLevel = "aggressive"
	assert.NotEqual(t, base, Fingerprint(edited))

	// A deeply nested change is enough.
	edited = sampleDefaults()
	edited.SafetySettings.Scalp.MaxTradesPerMinute = 6
	assert.NotEqual(t, base, Fingerprint(edited))
}

func TestSafetyDefaults_ForMode(t *testing.T) {
	d := sampleDefaults()
	assert.NotNil(t, d.SafetySettings.ForMode(ModeScalp))
	assert.Nil(t, d.SafetySettings.ForMode(ModeSwing))
	assert.Nil(t, d.SafetySettings.ForMode("bogus"))

	var none *SafetyDefaults
	assert.Nil(t, none.ForMode(ModeScalp))
}

func TestDefaultGlobalTrading(t *testing.T) {
	gt := DefaultGlobalTrading()
	assert.Equal(t, "moderate", gt.RiskLevel)
	assert.Equal(t, "UTC", gt.Timezone)
}

func TestDefaultSafetySettings(t *testing.T) {
	s := DefaultSafetySettings(ModeSwing)
	assert.Equal(t, ModeSwing, s.Mode)
	assert.Equal(t, 3, s.MaxTradesPerMinute)
	assert.True(t, s.EnableProfitMonitor)
	assert.True(t, s.EnableWinRateMonitor)
}
