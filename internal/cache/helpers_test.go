package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openfunk/modetrader/internal/settings"
	"github.com/openfunk/modetrader/internal/store"
)

// fakeRepo is an in-memory store.Repository that counts calls, so tests can
// assert the durable store is consulted exactly when the contract says.
type fakeRepo struct {
	modeConfigs    map[string]*settings.ModeConfig
	circuitBreaker map[string]*settings.GlobalCircuitBreaker
	llm            map[string]*settings.LLMSettings
	capital        map[string]*settings.CapitalAllocation
	globalTrading  map[string]*settings.GlobalTrading
	safety         map[string]*settings.SafetySettings
	calls          map[string]int
	failWith       error
	failModes      map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		modeConfigs:    make(map[string]*settings.ModeConfig),
		circuitBreaker: make(map[string]*settings.GlobalCircuitBreaker),
		llm:            make(map[string]*settings.LLMSettings),
		capital:        make(map[string]*settings.CapitalAllocation),
		globalTrading:  make(map[string]*settings.GlobalTrading),
		safety:         make(map[string]*settings.SafetySettings),
		calls:          make(map[string]int),
		failModes:      make(map[string]error),
	}
}

func (f *fakeRepo) count(op string) error {
	f.calls[op]++
	return f.failWith
}

// totalCalls sums every recorded store call.
func (f *fakeRepo) totalCalls() int {
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func modeKey(userID, mode string) string { return userID + "/" + mode }

func (f *fakeRepo) GetModeConfig(ctx context.Context, userID, mode string) (*settings.ModeConfig, error) {
	if err := f.count("GetModeConfig"); err != nil {
		return nil, err
	}
	if err := f.failModes[mode]; err != nil {
		return nil, err
	}
	cfg, ok := f.modeConfigs[modeKey(userID, mode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (f *fakeRepo) SaveModeConfig(ctx context.Context, userID string, cfg *settings.ModeConfig) error {
	if err := f.count("SaveModeConfig"); err != nil {
		return err
	}
	cp := *cfg
	f.modeConfigs[modeKey(userID, cfg.ModeName)] = &cp
	return nil
}

func (f *fakeRepo) UpdateModeGroup(ctx context.Context, userID, mode, group string, raw []byte) error {
	if err := f.count("UpdateModeGroup"); err != nil {
		return err
	}
	cfg, ok := f.modeConfigs[modeKey(userID, mode)]
	if !ok {
		return store.ErrNotFound
	}
	return settings.MergeGroup(cfg, group, raw)
}

func (f *fakeRepo) GetGlobalCircuitBreaker(ctx context.Context, userID string) (*settings.GlobalCircuitBreaker, error) {
	if err := f.count("GetGlobalCircuitBreaker"); err != nil {
		return nil, err
	}
	cb, ok := f.circuitBreaker[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cb, nil
}

func (f *fakeRepo) SaveGlobalCircuitBreaker(ctx context.Context, userID string, cb *settings.GlobalCircuitBreaker) error {
	if err := f.count("SaveGlobalCircuitBreaker"); err != nil {
		return err
	}
	f.circuitBreaker[userID] = cb
	return nil
}

func (f *fakeRepo) GetLLMSettings(ctx context.Context, userID string) (*settings.LLMSettings, error) {
	if err := f.count("GetLLMSettings"); err != nil {
		return nil, err
	}
	llm, ok := f.llm[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return llm, nil
}

func (f *fakeRepo) SaveLLMSettings(ctx context.Context, userID string, llm *settings.LLMSettings) error {
	if err := f.count("SaveLLMSettings"); err != nil {
		return err
	}
	f.llm[userID] = llm
	return nil
}

func (f *fakeRepo) GetCapitalAllocation(ctx context.Context, userID string) (*settings.CapitalAllocation, error) {
	if err := f.count("GetCapitalAllocation"); err != nil {
		return nil, err
	}
	ca, ok := f.capital[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ca, nil
}

func (f *fakeRepo) SaveCapitalAllocation(ctx context.Context, userID string, ca *settings.CapitalAllocation) error {
	if err := f.count("SaveCapitalAllocation"); err != nil {
		return err
	}
	f.capital[userID] = ca
	return nil
}

func (f *fakeRepo) GetGlobalTrading(ctx context.Context, userID string) (*settings.GlobalTrading, error) {
	if err := f.count("GetGlobalTrading"); err != nil {
		return nil, err
	}
	gt, ok := f.globalTrading[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return gt, nil
}

func (f *fakeRepo) SaveGlobalTrading(ctx context.Context, userID string, gt *settings.GlobalTrading) error {
	if err := f.count("SaveGlobalTrading"); err != nil {
		return err
	}
	f.globalTrading[userID] = gt
	return nil
}

func (f *fakeRepo) GetSafetySettings(ctx context.Context, userID, mode string) (*settings.SafetySettings, error) {
	if err := f.count("GetSafetySettings"); err != nil {
		return nil, err
	}
	s, ok := f.safety[modeKey(userID, mode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) SaveSafetySettings(ctx context.Context, userID, mode string, s *settings.SafetySettings) error {
	if err := f.count("SaveSafetySettings"); err != nil {
		return err
	}
	f.safety[modeKey(userID, mode)] = s
	return nil
}

var errRepoDown = errors.New("repo down")

// testModeConfig builds a mode config with a representative subset of
// groups set.
func testModeConfig(mode string) *settings.ModeConfig {
	return &settings.ModeConfig{
		ModeName: mode,
		Enabled:  true,
		Risk: &settings.RiskConfig{
			RiskLevel:           "moderate",
			MaxDrawdownPercent:  10,
			MaxDailyLossPercent: 3,
		},
		Size: &settings.SizeConfig{
			BaseSizeUSD:  100,
			MaxSizeUSD:   500,
			MaxPositions: 3,
			Leverage:     5,
		},
		Timeframe: &settings.TimeframeConfig{
			TrendTimeframe: "4h",
			EntryTimeframe: "15m",
		},
	}
}

// fullTestModeConfig builds a mode config with every group set, so an MGET
// over all 20 group keys returns no misses once cached.
func fullTestModeConfig(mode string) *settings.ModeConfig {
	return &settings.ModeConfig{
		ModeName:             mode,
		Enabled:              true,
		Timeframe:            &settings.TimeframeConfig{TrendTimeframe: "4h", EntryTimeframe: "15m"},
		Confidence:           &settings.ConfidenceConfig{MinConfidence: 0.6, HighConfidence: 0.8},
		Size:                 &settings.SizeConfig{BaseSizeUSD: 100, Leverage: 5},
		SLTP:                 &settings.SLTPConfig{StopLossPercent: 2, TakeProfitPercent: 5},
		Risk:                 &settings.RiskConfig{RiskLevel: "moderate"},
		CircuitBreaker:       &settings.ModeCircuitBreakerConfig{MaxLossPerDay: 50},
		Hedge:                &settings.HedgeConfig{AllowHedge: true},
		Averaging:            &settings.AveragingConfig{AllowAveraging: true, MaxAverages: 3},
		StaleRelease:         &settings.StaleReleaseConfig{Enabled: true},
		Assignment:           &settings.AssignmentConfig{ConfidenceMin: 0.5, PriorityWeight: 1},
		MTF:                  &settings.MTFConfig{Enabled: true, Timeframes: []string{"1h", "4h"}},
		DynamicAIExit:        &settings.DynamicAIExitConfig{Enabled: true, MinHoldMinutes: 10},
		Reversal:             &settings.ReversalConfig{Enabled: true, MinReversalScore: 0.7},
		FundingRate:          &settings.FundingRateConfig{Enabled: true, MaxFundingRate: 0.01},
		TrendDivergence:      &settings.TrendDivergenceConfig{Enabled: true},
		PositionOptimization: &settings.PositionOptimizationConfig{Enabled: true, MaxDCALevels: 2},
		TrendFilters:         &settings.TrendFiltersConfig{BTCTrendFilter: true},
		EarlyWarning:         &settings.EarlyWarningConfig{Enabled: true, MinLossPercent: 1},
		Entry:                &settings.EntryConfig{EntryMode: "limit", MaxWaitSeconds: 30},
	}
}

// writeDefaultsFile writes a complete defaults document to a temp file and
// returns its path.
func writeDefaultsFile(t *testing.T, defaults *settings.DefaultsFile) string {
	t.Helper()
	data, err := json.MarshalIndent(defaults, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "default-settings.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// testDefaultsFile builds a defaults document covering all four modes.
func testDefaultsFile() *settings.DefaultsFile {
	modeConfigs := make(map[string]*settings.ModeConfig, len(settings.TradingModes))
	for _, mode := range settings.TradingModes {
		cfg := testModeConfig(mode)
		cfg.Enabled = mode == settings.ModeScalp
		modeConfigs[mode] = cfg
	}
	return &settings.DefaultsFile{
		Metadata: settings.DefaultsMetadata{
			Version:       "1.0.0",
			SchemaVersion: 1,
		},
		GlobalTrading: settings.GlobalTrading{
			RiskLevel:        "moderate",
			MaxUSDAllocation: 2000,
			Timezone:         "UTC",
		},
		ModeConfigs: modeConfigs,
		CircuitBreaker: settings.GlobalCircuitBreaker{
			Enabled:              true,
			MaxDailyLoss:         200,
			MaxConsecutiveLosses: 5,
		},
		LLMConfig: settings.LLMSettings{
			Enabled:  true,
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
		},
		CapitalAllocation: settings.CapitalAllocation{
			UltraFastPercent: 10,
			ScalpPercent:     30,
			SwingPercent:     40,
			PositionPercent:  20,
		},
		SafetySettings: &settings.SafetyDefaults{
			Scalp: &settings.SafetySettings{
				Mode:               settings.ModeScalp,
				MaxTradesPerMinute: 5,
				MaxTradesPerHour:   40,
			},
		},
	}
}

// setupSettingsCache wires a SettingsCache against miniredis, a fake repo
// and a temp defaults file.
func setupSettingsCache(t *testing.T) (*SettingsCache, *fakeRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := newClientWithRedis(rdb, 3, time.Hour)

	repo := newFakeRepo()
	loader := settings.NewLoader(writeDefaultsFile(t, testDefaultsFile()))

	svc := NewSettingsCache(client, repo, loader, zerolog.Nop())
	return svc, repo, mr
}

// openBreaker drives the client's breaker open through real failures.
func openBreaker(t *testing.T, c *Client, mr *miniredis.Miniredis) {
	t.Helper()
	mr.SetError("backend down")
	for i := 0; i < 3; i++ {
		c.Get(context.Background(), "breaker:probe:key")
	}
	mr.SetError("")
	require.False(t, c.IsHealthy())
}
