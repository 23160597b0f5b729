// Package settings holds the static schema for per-mode trading
// configuration: the trading modes, the setting groups each mode is composed
// of, and the cross-mode and safety settings that sit outside any single
// mode. The cache layer stores each group as an independent JSON blob; the
// types here define what those blobs decode to.
package settings

// Trading mode names. Every mode owns a full ModeConfig.
const (
	ModeUltraFast = "ultra_fast"
	ModeScalp     = "scalp"
	ModeSwing     = "swing"
	ModePosition  = "position"
)

// TradingModes lists the four trading modes in canonical order.
var TradingModes = []string{ModeUltraFast, ModeScalp, ModeSwing, ModePosition}

// IsTradingMode reports whether mode is one of the four trading modes.
func IsTradingMode(mode string) bool {
	for _, m := range TradingModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Cross-mode setting names. These are not scoped to a single mode.
const (
	SettingCircuitBreaker    = "circuit_breaker"
	SettingLLMConfig         = "llm_config"
	SettingCapitalAllocation = "capital_allocation"
	SettingGlobalTrading     = "global_trading"
)

// CrossModeSettings lists the four cross-mode setting names.
var CrossModeSettings = []string{
	SettingCircuitBreaker,
	SettingLLMConfig,
	SettingCapitalAllocation,
	SettingGlobalTrading,
}

// SafetySettingsModes lists the modes that carry safety settings (rate
// limits, profit monitor, win-rate monitor). Currently all four.
var SafetySettingsModes = []string{ModeUltraFast, ModeScalp, ModeSwing, ModePosition}

// ModeConfig holds the complete configuration for one trading mode.
// Each pointer field corresponds to one independently cacheable setting
// group; a nil field means the group is not configured.
type ModeConfig struct {
	ModeName string `json:"mode_name"`
	Enabled  bool   `json:"enabled"`

	Timeframe            *TimeframeConfig            `json:"timeframe"`
	Confidence           *ConfidenceConfig           `json:"confidence"`
	Size                 *SizeConfig                 `json:"size"`
	SLTP                 *SLTPConfig                 `json:"sltp"`
	Risk                 *RiskConfig                 `json:"risk"`
	CircuitBreaker       *ModeCircuitBreakerConfig   `json:"circuit_breaker"`
	Hedge                *HedgeConfig                `json:"hedge"`
	Averaging            *AveragingConfig            `json:"averaging"`
	StaleRelease         *StaleReleaseConfig         `json:"stale_release"`
	Assignment           *AssignmentConfig           `json:"assignment"`
	MTF                  *MTFConfig                  `json:"mtf"`
	DynamicAIExit        *DynamicAIExitConfig        `json:"dynamic_ai_exit"`
	Reversal             *ReversalConfig             `json:"reversal"`
	FundingRate          *FundingRateConfig          `json:"funding_rate"`
	TrendDivergence      *TrendDivergenceConfig      `json:"trend_divergence"`
	PositionOptimization *PositionOptimizationConfig `json:"position_optimization"`
	TrendFilters         *TrendFiltersConfig         `json:"trend_filters"`
	EarlyWarning         *EarlyWarningConfig         `json:"early_warning"`
	Entry                *EntryConfig                `json:"entry"`
}

// EnabledFlag is the synthetic single-field projection of a mode's enabled
// state, so the flag can be cached and updated like any other group.
type EnabledFlag struct {
	Enabled bool `json:"enabled"`
}

// TimeframeConfig holds the chart timeframes a mode operates on.
type TimeframeConfig struct {
	TrendTimeframe    string `json:"trend_timeframe"`
	EntryTimeframe    string `json:"entry_timeframe"`
	AnalysisTimeframe string `json:"analysis_timeframe"`
}

// ConfidenceConfig holds signal confidence thresholds.
type ConfidenceConfig struct {
	MinConfidence   float64 `json:"min_confidence"`
	HighConfidence  float64 `json:"high_confidence"`
	UltraConfidence float64 `json:"ultra_confidence"`
}

// SizeConfig holds position sizing settings.
type SizeConfig struct {
	BaseSizeUSD      float64 `json:"base_size_usd"`
	MaxSizeUSD       float64 `json:"max_size_usd"`
	MaxPositions     int     `json:"max_positions"`
	Leverage         int     `json:"leverage"`
	SizeMultiplierLo float64 `json:"size_multiplier_lo"`
	SizeMultiplierHi float64 `json:"size_multiplier_hi"`
	SafetyMargin     float64 `json:"safety_margin"`
	MinBalanceUSD    float64 `json:"min_balance_usd"`
}

// SLTPConfig holds stop-loss and take-profit settings.
type SLTPConfig struct {
	StopLossPercent        float64   `json:"stop_loss_percent"`
	TakeProfitPercent      float64   `json:"take_profit_percent"`
	TrailingStopEnabled    bool      `json:"trailing_stop_enabled"`
	TrailingStopPercent    float64   `json:"trailing_stop_percent"`
	TrailingStopActivation float64   `json:"trailing_stop_activation"`
	MaxHoldDuration        string    `json:"max_hold_duration"`
	UseSingleTP            bool      `json:"use_single_tp"`
	SingleTPPercent        float64   `json:"single_tp_percent"`
	TPGainLevels           []float64 `json:"tp_gain_levels"`
	TPAllocation           []float64 `json:"tp_allocation"`
	MarginType             string    `json:"margin_type"`
}

// RiskConfig holds per-mode risk limits.
type RiskConfig struct {
	RiskLevel                  string  `json:"risk_level"`
	RiskMultiplierConservative float64 `json:"risk_multiplier_conservative"`
	RiskMultiplierModerate     float64 `json:"risk_multiplier_moderate"`
	RiskMultiplierAggressive   float64 `json:"risk_multiplier_aggressive"`
	MaxDrawdownPercent         float64 `json:"max_drawdown_percent"`
	MaxDailyLossPercent        float64 `json:"max_daily_loss_percent"`
}

// ModeCircuitBreakerConfig holds per-mode trading limits. Distinct from the
// cross-mode GlobalCircuitBreaker and from the Redis client's own breaker.
type ModeCircuitBreakerConfig struct {
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`
	MaxLossPerDay        float64 `json:"max_loss_per_day"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxTradesPerHour     int     `json:"max_trades_per_hour"`
	MaxTradesPerDay      int     `json:"max_trades_per_day"`
	MinWinRate           float64 `json:"min_win_rate"`
}

// HedgeConfig holds hedge settings (simultaneous long and short).
type HedgeConfig struct {
	AllowHedge             bool    `json:"allow_hedge"`
	MinConfidenceForHedge  float64 `json:"min_confidence_for_hedge"`
	ExistingMustBeInProfit float64 `json:"existing_must_be_in_profit"`
	MaxHedgeSizePercent    float64 `json:"max_hedge_size_percent"`
	AllowSameModeHedge     bool    `json:"allow_same_mode_hedge"`
}

// AveragingConfig holds position averaging (DCA) rules.
type AveragingConfig struct {
	AllowAveraging          bool    `json:"allow_averaging"`
	AverageUpProfitPercent  float64 `json:"average_up_profit_percent"`
	AverageDownLossPercent  float64 `json:"average_down_loss_percent"`
	AddSizePercent          float64 `json:"add_size_percent"`
	MaxAverages             int     `json:"max_averages"`
	MinConfidenceForAverage float64 `json:"min_confidence_for_average"`
}

// StaleReleaseConfig holds stale position release settings.
type StaleReleaseConfig struct {
	Enabled             bool    `json:"enabled"`
	MaxHoldDuration     string  `json:"max_hold_duration"`
	MinProfitToKeep     float64 `json:"min_profit_to_keep"`
	MaxLossToForceClose float64 `json:"max_loss_to_force_close"`
	StaleZoneLo         float64 `json:"stale_zone_lo"`
	StaleZoneHi         float64 `json:"stale_zone_hi"`
}

// AssignmentConfig holds mode assignment criteria used by the analyzer to
// route a signal to this mode.
type AssignmentConfig struct {
	VolatilityMin      string  `json:"volatility_min"`
	VolatilityMax      string  `json:"volatility_max"`
	ExpectedHoldMin    string  `json:"expected_hold_min"`
	ExpectedHoldMax    string  `json:"expected_hold_max"`
	ConfidenceMin      float64 `json:"confidence_min"`
	ConfidenceMax      float64 `json:"confidence_max"`
	RequiresTrendAlign bool    `json:"requires_trend_align"`
	PriorityWeight     float64 `json:"priority_weight"`
}

// MTFConfig holds multi-timeframe analysis settings.
type MTFConfig struct {
	Enabled           bool     `json:"enabled"`
	Timeframes        []string `json:"timeframes"`
	MinAlignmentScore float64  `json:"min_alignment_score"`
	BlockOnConflict   bool     `json:"block_on_conflict"`
}

// DynamicAIExitConfig holds AI-driven exit decision settings.
type DynamicAIExitConfig struct {
	Enabled             bool    `json:"enabled"`
	CheckIntervalSecs   int     `json:"check_interval_secs"`
	MinHoldMinutes      int     `json:"min_hold_minutes"`
	MinConfidenceToExit float64 `json:"min_confidence_to_exit"`
	MaxCallsPerPosition int     `json:"max_calls_per_position"`
}

// ReversalConfig holds reversal entry pattern settings.
type ReversalConfig struct {
	Enabled            bool    `json:"enabled"`
	MinReversalScore   float64 `json:"min_reversal_score"`
	RequireVolumeSpike bool    `json:"require_volume_spike"`
	CooldownMinutes    int     `json:"cooldown_minutes"`
}

// FundingRateConfig holds funding rate awareness settings.
type FundingRateConfig struct {
	Enabled             bool    `json:"enabled"`
	MaxFundingRate      float64 `json:"max_funding_rate"`
	ExitTimeMinutes     int     `json:"exit_time_minutes"`
	FeeThresholdPercent float64 `json:"fee_threshold_percent"`
	BlockTimeMinutes    int     `json:"block_time_minutes"`
}

// TrendDivergenceConfig holds trend divergence detection settings.
type TrendDivergenceConfig struct {
	Enabled              bool    `json:"enabled"`
	MinDivergencePercent float64 `json:"min_divergence_percent"`
	BlockOnDivergence    bool    `json:"block_on_divergence"`
	DivergenceWeight     float64 `json:"divergence_weight"`
}

// PositionOptimizationConfig holds progressive TP and DCA tuning.
type PositionOptimizationConfig struct {
	Enabled              bool    `json:"enabled"`
	ProgressiveTPEnabled bool    `json:"progressive_tp_enabled"`
	DCAEnabled           bool    `json:"dca_enabled"`
	MaxDCALevels         int     `json:"max_dca_levels"`
	TPTightenPercent     float64 `json:"tp_tighten_percent"`
}

// TrendFiltersConfig holds market-wide trend filters.
type TrendFiltersConfig struct {
	BTCTrendFilter   bool    `json:"btc_trend_filter"`
	EMAAlignFilter   bool    `json:"ema_align_filter"`
	VWAPFilter       bool    `json:"vwap_filter"`
	MinTrendStrength float64 `json:"min_trend_strength"`
}

// EarlyWarningConfig holds early exit monitoring settings.
type EarlyWarningConfig struct {
	Enabled           bool    `json:"enabled"`
	StartAfterMinutes int     `json:"start_after_minutes"`
	CheckIntervalSecs int     `json:"check_interval_secs"`
	OnlyUnderwater    bool    `json:"only_underwater"`
	MinLossPercent    float64 `json:"min_loss_percent"`
	CloseOnReversal   bool    `json:"close_on_reversal"`
}

// EntryConfig holds order entry settings.
type EntryConfig struct {
	EntryMode          string  `json:"entry_mode"`
	LimitOffsetPercent float64 `json:"limit_offset_percent"`
	MaxWaitSeconds     int     `json:"max_wait_seconds"`
	AllowReentry       bool    `json:"allow_reentry"`
	ReentryCooldownMin int     `json:"reentry_cooldown_min"`
}

// ====== CROSS-MODE SETTINGS ======

// GlobalCircuitBreaker holds the account-wide trading halt limits.
type GlobalCircuitBreaker struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// LLMSettings holds the AI provider configuration.
type LLMSettings struct {
	Enabled          bool   `json:"enabled"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	TimeoutMS        int    `json:"timeout_ms"`
	RetryCount       int    `json:"retry_count"`
	CacheDurationSec int    `json:"cache_duration_sec"`
}

// CapitalAllocation holds the capital split across modes, in percent.
type CapitalAllocation struct {
	UltraFastPercent      float64 `json:"ultra_fast_percent"`
	ScalpPercent          float64 `json:"scalp_percent"`
	SwingPercent          float64 `json:"swing_percent"`
	PositionPercent       float64 `json:"position_percent"`
	AllowDynamicRebalance bool    `json:"allow_dynamic_rebalance"`
	RebalanceThresholdPct float64 `json:"rebalance_threshold_pct"`
}

// GlobalTrading holds account-wide trading parameters.
type GlobalTrading struct {
	RiskLevel               string  `json:"risk_level"`
	MaxUSDAllocation        float64 `json:"max_usd_allocation"`
	ProfitReinvestPercent   float64 `json:"profit_reinvest_percent"`
	ProfitReinvestRiskLevel string  `json:"profit_reinvest_risk_level"`
	Timezone                string  `json:"timezone"`
	TimezoneOffset          int     `json:"timezone_offset"`
}

// DefaultGlobalTrading returns the fallback global trading parameters used
// when a user has no row in the durable store yet.
func DefaultGlobalTrading() *GlobalTrading {
	return &GlobalTrading{
		RiskLevel:               "moderate",
		MaxUSDAllocation:        1000,
		ProfitReinvestPercent:   0,
		ProfitReinvestRiskLevel: "conservative",
		Timezone:                "UTC",
	}
}

// SafetySettings holds per-mode safety controls: trade rate limits, the
// profit monitor, and the win-rate monitor.
type SafetySettings struct {
	Mode                   string  `json:"mode"`
	MaxTradesPerMinute     int     `json:"max_trades_per_minute"`
	MaxTradesPerHour       int     `json:"max_trades_per_hour"`
	MaxTradesPerDay        int     `json:"max_trades_per_day"`
	EnableProfitMonitor    bool    `json:"enable_profit_monitor"`
	ProfitWindowMinutes    int     `json:"profit_window_minutes"`
	MaxLossPercentInWindow float64 `json:"max_loss_percent_in_window"`
	PauseCooldownMinutes   int     `json:"pause_cooldown_minutes"`
	EnableWinRateMonitor   bool    `json:"enable_win_rate_monitor"`
	WinRateSampleSize      int     `json:"win_rate_sample_size"`
	MinWinRateThreshold    float64 `json:"min_win_rate_threshold"`
	WinRateCooldownMinutes int     `json:"win_rate_cooldown_minutes"`
}

// DefaultSafetySettings returns conservative safety settings for a mode,
// used when neither cache nor store has a row.
func DefaultSafetySettings(mode string) *SafetySettings {
	return &SafetySettings{
		Mode:                   mode,
		MaxTradesPerMinute:     3,
		MaxTradesPerHour:       20,
		MaxTradesPerDay:        100,
		EnableProfitMonitor:    true,
		ProfitWindowMinutes:    60,
		MaxLossPercentInWindow: 5,
		PauseCooldownMinutes:   30,
		EnableWinRateMonitor:   true,
		WinRateSampleSize:      20,
		MinWinRateThreshold:    40,
		WinRateCooldownMinutes: 60,
	}
}
