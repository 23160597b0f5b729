package settings

import "encoding/json"

// Group describes one independently cacheable sub-document of a mode's
// configuration. Key is the stable cache-key suffix; Name and Description
// are display metadata for comparison UIs.
type Group struct {
	Key         string
	Name        string
	Description string
}

// Groups lists the 20 setting groups in canonical order. The set is fixed;
// ExtractGroup and MergeGroup are exhaustive over exactly these keys.
var Groups = []Group{
	{Key: "enabled", Name: "Mode Status", Description: "Whether the mode is enabled"},
	{Key: "timeframe", Name: "Timeframe Settings", Description: "Chart timeframes"},
	{Key: "confidence", Name: "Confidence Settings", Description: "Confidence thresholds"},
	{Key: "size", Name: "Size Settings", Description: "Position sizing"},
	{Key: "sltp", Name: "SL/TP Settings", Description: "Stop loss and take profit"},
	{Key: "risk", Name: "Risk Settings", Description: "Risk parameters"},
	{Key: "circuit_breaker", Name: "Circuit Breaker", Description: "Per-mode trading limits"},
	{Key: "hedge", Name: "Hedge Settings", Description: "Hedge configuration"},
	{Key: "averaging", Name: "Position Averaging", Description: "DCA rules"},
	{Key: "stale_release", Name: "Stale Position Release", Description: "Stale position handling"},
	{Key: "assignment", Name: "Mode Assignment", Description: "Mode selection criteria"},
	{Key: "mtf", Name: "Multi-Timeframe", Description: "MTF analysis"},
	{Key: "dynamic_ai_exit", Name: "Dynamic AI Exit", Description: "AI exit decisions"},
	{Key: "reversal", Name: "Reversal Entry", Description: "Reversal patterns"},
	{Key: "funding_rate", Name: "Funding Rate", Description: "Funding rate rules"},
	{Key: "trend_divergence", Name: "Trend Divergence", Description: "Trend alignment"},
	{Key: "position_optimization", Name: "Position Optimization", Description: "Progressive TP and DCA"},
	{Key: "trend_filters", Name: "Trend Filters", Description: "BTC, EMA, VWAP filters"},
	{Key: "early_warning", Name: "Early Warning", Description: "Early exit monitoring"},
	{Key: "entry", Name: "Entry Settings", Description: "Entry configuration"},
}

// IsGroupKey reports whether key names one of the 20 setting groups.
func IsGroupKey(key string) bool {
	_, ok := groupCodecs[key]
	return ok
}

// GroupKeys returns the group keys in canonical order.
func GroupKeys() []string {
	keys := make([]string, len(Groups))
	for i, g := range Groups {
		keys[i] = g.Key
	}
	return keys
}

// groupCodec pairs the projection and the inverse decode for one group, so
// the extract and merge sides can never drift apart.
type groupCodec struct {
	extract func(*ModeConfig) any
	merge   func(*ModeConfig, []byte) error
}

// decodeInto builds a merge function that unmarshals into T and assigns the
// result through set.
func decodeInto[T any](set func(*ModeConfig, *T)) func(*ModeConfig, []byte) error {
	return func(cfg *ModeConfig, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		set(cfg, &v)
		return nil
	}
}

// extractPtr builds an extract function that returns nil (not a typed nil
// wrapped in an interface) when the field is unset.
func extractPtr[T any](get func(*ModeConfig) *T) func(*ModeConfig) any {
	return func(cfg *ModeConfig) any {
		if p := get(cfg); p != nil {
			return p
		}
		return nil
	}
}

var groupCodecs = map[string]groupCodec{
	"enabled": {
		extract: func(cfg *ModeConfig) any { return &EnabledFlag{Enabled: cfg.Enabled} },
		merge: decodeInto(func(cfg *ModeConfig, v *EnabledFlag) {
			cfg.Enabled = v.Enabled
		}),
	},
	"timeframe": {
		extract: extractPtr(func(cfg *ModeConfig) *TimeframeConfig { return cfg.Timeframe }),
		merge:   decodeInto(func(cfg *ModeConfig, v *TimeframeConfig) { cfg.Timeframe = v }),
	},
	"confidence": {
		extract: extractPtr(func(cfg *ModeConfig) *ConfidenceConfig { return cfg.Confidence }),
		merge:   decodeInto(func(cfg *ModeConfig, v *ConfidenceConfig) { cfg.Confidence = v }),
	},
	"size": {
		extract: extractPtr(func(cfg *ModeConfig) *SizeConfig { return cfg.Size }),
		merge:   decodeInto(func(cfg *ModeConfig, v *SizeConfig) { cfg.Size = v }),
	},
	"sltp": {
		extract: extractPtr(func(cfg *ModeConfig) *SLTPConfig { return cfg.SLTP }),
		merge:   decodeInto(func(cfg *ModeConfig, v *SLTPConfig) { cfg.SLTP = v }),
	},
	"risk": {
		extract: extractPtr(func(cfg *ModeConfig) *RiskConfig { return cfg.Risk }),
		merge:   decodeInto(func(cfg *ModeConfig, v *RiskConfig) { cfg.Risk = v }),
	},
	"circuit_breaker": {
		extract: extractPtr(func(cfg *ModeConfig) *ModeCircuitBreakerConfig { return cfg.CircuitBreaker }),
		merge:   decodeInto(func(cfg *ModeConfig, v *ModeCircuitBreakerConfig) { cfg.CircuitBreaker = v }),
	},
	"hedge": {
		extract: extractPtr(func(cfg *ModeConfig) *HedgeConfig { return cfg.Hedge }),
		merge:   decodeInto(func(cfg *ModeConfig, v *HedgeConfig) { cfg.Hedge = v }),
	},
	"averaging": {
		extract: extractPtr(func(cfg *ModeConfig) *AveragingConfig { return cfg.Averaging }),
		merge:   decodeInto(func(cfg *ModeConfig, v *AveragingConfig) { cfg.Averaging = v }),
	},
	"stale_release": {
		extract: extractPtr(func(cfg *ModeConfig) *StaleReleaseConfig { return cfg.StaleRelease }),
		merge:   decodeInto(func(cfg *ModeConfig, v *StaleReleaseConfig) { cfg.StaleRelease = v }),
	},
	"assignment": {
		extract: extractPtr(func(cfg *ModeConfig) *AssignmentConfig { return cfg.Assignment }),
		merge:   decodeInto(func(cfg *ModeConfig, v *AssignmentConfig) { cfg.Assignment = v }),
	},
	"mtf": {
		extract: extractPtr(func(cfg *ModeConfig) *MTFConfig { return cfg.MTF }),
		merge:   decodeInto(func(cfg *ModeConfig, v *MTFConfig) { cfg.MTF = v }),
	},
	"dynamic_ai_exit": {
		extract: extractPtr(func(cfg *ModeConfig) *DynamicAIExitConfig { return cfg.DynamicAIExit }),
		merge:   decodeInto(func(cfg *ModeConfig, v *DynamicAIExitConfig) { cfg.DynamicAIExit = v }),
	},
	"reversal": {
		extract: extractPtr(func(cfg *ModeConfig) *ReversalConfig { return cfg.Reversal }),
		merge:   decodeInto(func(cfg *ModeConfig, v *ReversalConfig) { cfg.Reversal = v }),
	},
	"funding_rate": {
		extract: extractPtr(func(cfg *ModeConfig) *FundingRateConfig { return cfg.FundingRate }),
		merge:   decodeInto(func(cfg *ModeConfig, v *FundingRateConfig) { cfg.FundingRate = v }),
	},
	"trend_divergence": {
		extract: extractPtr(func(cfg *ModeConfig) *TrendDivergenceConfig { return cfg.TrendDivergence }),
		merge:   decodeInto(func(cfg *ModeConfig, v *TrendDivergenceConfig) { cfg.TrendDivergence = v }),
	},
	"position_optimization": {
		extract: extractPtr(func(cfg *ModeConfig) *PositionOptimizationConfig { return cfg.PositionOptimization }),
		merge:   decodeInto(func(cfg *ModeConfig, v *PositionOptimizationConfig) { cfg.PositionOptimization = v }),
	},
	"trend_filters": {
		extract: extractPtr(func(cfg *ModeConfig) *TrendFiltersConfig { return cfg.TrendFilters }),
		merge:   decodeInto(func(cfg *ModeConfig, v *TrendFiltersConfig) { cfg.TrendFilters = v }),
	},
	"early_warning": {
		extract: extractPtr(func(cfg *ModeConfig) *EarlyWarningConfig { return cfg.EarlyWarning }),
		merge:   decodeInto(func(cfg *ModeConfig, v *EarlyWarningConfig) { cfg.EarlyWarning = v }),
	},
	"entry": {
		extract: extractPtr(func(cfg *ModeConfig) *EntryConfig { return cfg.Entry }),
		merge:   decodeInto(func(cfg *ModeConfig, v *EntryConfig) { cfg.Entry = v }),
	},
}

// ExtractGroup projects one named group out of a full mode configuration.
// Returns nil for an unrecognized key or an unset group; both mean "nothing
// to cache", never an error. Unknown keys are a deliberate no-op so that a
// peer with a newer schema does not break this one.
func ExtractGroup(cfg *ModeConfig, groupKey string) any {
	codec, ok := groupCodecs[groupKey]
	if !ok {
		return nil
	}
	return codec.extract(cfg)
}

// MergeGroup decodes a group's stored JSON back into the matching field of
// cfg. Unrecognized keys are a no-op. A decode failure is returned so the
// caller can treat the stored value as corrupt.
func MergeGroup(cfg *ModeConfig, groupKey string, raw []byte) error {
	codec, ok := groupCodecs[groupKey]
	if !ok {
		return nil
	}
	return codec.merge(cfg, raw)
}
