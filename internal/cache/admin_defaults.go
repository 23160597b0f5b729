package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/openfunk/modetrader/internal/metrics"
	"github.com/openfunk/modetrader/internal/settings"
)

// Reload trigger labels for the admin defaults metrics.
const (
	reloadStartup     = "startup"
	reloadHashChanged = "hash_changed"
	reloadCacheMiss   = "cache_miss"
)

// AdminDefaultsCache mirrors the admin defaults file into Redis: one key per
// mode group, cross-mode setting and safety mode, plus a content fingerprint
// key. The fingerprint lets any instance detect that the file changed and
// atomically refresh the whole mirror; comparing fingerprints instead of
// timestamps makes the check immune to clock skew and no-op rewrites.
type AdminDefaultsCache struct {
	client *Client
	loader *settings.Loader
	log    zerolog.Logger
}

// NewAdminDefaultsCache wires the admin defaults service.
func NewAdminDefaultsCache(client *Client, loader *settings.Loader, logger zerolog.Logger) *AdminDefaultsCache {
	return &AdminDefaultsCache{
		client: client,
		loader: loader,
		log:    logger,
	}
}

// LoadAdminDefaults reads the defaults file and writes the full mirror: 80
// mode group keys, 4 global keys, 4 safety keys and the fingerprint. The
// fingerprint is written last so a mirror with a current fingerprint is
// always complete.
func (a *AdminDefaultsCache) LoadAdminDefaults(ctx context.Context) error {
	defaults, err := a.loader.Load()
	if err != nil {
		return fmt.Errorf("load defaults file: %w", err)
	}
	return a.writeMirror(ctx, defaults, reloadStartup)
}

// writeMirror writes every key of the admin defaults mirror from an
// already-loaded defaults document.
func (a *AdminDefaultsCache) writeMirror(ctx context.Context, defaults *settings.DefaultsFile, trigger string) error {
	if !a.client.IsHealthy() {
		return ErrCacheUnavailable
	}

	for _, mode := range settings.TradingModes {
		cfg, ok := defaults.ModeConfigs[mode]
		if !ok {
			a.log.Warn().Str("mode", mode).Msg("Defaults file has no config for mode")
			continue
		}
		for _, group := range settings.GroupKeys() {
			v := settings.ExtractGroup(cfg, group)
			if v == nil {
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode default %s/%s: %w", mode, group, err)
			}
			if err := a.client.Set(ctx, AdminModeGroupKey(mode, group), raw, 0); err != nil {
				return err
			}
		}
	}

	globals := map[string]any{
		settings.SettingCircuitBreaker:    defaults.CircuitBreaker,
		settings.SettingLLMConfig:         defaults.LLMConfig,
		settings.SettingCapitalAllocation: defaults.CapitalAllocation,
		settings.SettingGlobalTrading:     defaults.GlobalTrading,
	}
	for setting, v := range globals {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode default %s: %w", setting, err)
		}
		if err := a.client.Set(ctx, AdminGlobalKey(setting), raw, 0); err != nil {
			return err
		}
	}

	for _, mode := range settings.SafetySettingsModes {
		safety := defaults.SafetySettings.ForMode(mode)
		if safety == nil {
			safety = settings.DefaultSafetySettings(mode)
		}
		raw, err := json.Marshal(safety)
		if err != nil {
			return fmt.Errorf("encode default safety %s: %w", mode, err)
		}
		if err := a.client.Set(ctx, AdminSafetyKey(mode), raw, 0); err != nil {
			return err
		}
	}

	fp := settings.Fingerprint(defaults)
	if err := a.client.Set(ctx, AdminDefaultsHashKey(), []byte(fp), 0); err != nil {
		return err
	}

	metrics.AdminDefaultsReloads.WithLabelValues(trigger).Inc()
	a.log.Info().Str("fingerprint", fp[:12]).Str("trigger", trigger).Msg("Admin defaults mirror written")
	return nil
}

// CheckAndRefreshIfChanged re-reads the defaults file, compares its
// fingerprint against the cached one and rewrites the mirror when they
// differ. Returns true when a refresh happened. Editing the file and
// re-saving identical content is a no-op.
func (a *AdminDefaultsCache) CheckAndRefreshIfChanged(ctx context.Context) (bool, error) {
	defaults, err := a.loader.Load()
	if err != nil {
		return false, fmt.Errorf("load defaults file: %w", err)
	}
	current := settings.Fingerprint(defaults)

	cached, err := a.client.Get(ctx, AdminDefaultsHashKey())
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return false, err
	}
	if err == nil && cached == current {
		return false, nil
	}

	trigger := reloadHashChanged
	if errors.Is(err, ErrCacheMiss) {
		trigger = reloadCacheMiss
	}
	if err := a.writeMirror(ctx, defaults, trigger); err != nil {
		return false, err
	}
	return true, nil
}

// GetAdminDefaultGroup returns the default JSON for one mode group. A miss
// triggers one full mirror reload and a single retry; a group absent after
// that is ErrSettingNotFound.
func (a *AdminDefaultsCache) GetAdminDefaultGroup(ctx context.Context, mode, group string) (json.RawMessage, error) {
	if !validGroup(group) {
		return nil, fmt.Errorf("unknown setting group %q", group)
	}

	key := AdminModeGroupKey(mode, group)
	val, err := a.client.Get(ctx, key)
	if err == nil {
		metrics.CacheHits.Inc()
		return json.RawMessage(val), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	metrics.CacheMisses.Inc()
	defaults, lerr := a.loader.Load()
	if lerr != nil {
		return nil, fmt.Errorf("load defaults file: %w", lerr)
	}
	if err := a.writeMirror(ctx, defaults, reloadCacheMiss); err != nil {
		return nil, err
	}

	val, err = a.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}
	return json.RawMessage(val), nil
}

// getAdminGlobal reads one cross-mode default into out, with the same
// reload-and-retry behavior as GetAdminDefaultGroup. A cached value that no
// longer decodes counts as a miss, so the rebuild overwrites it.
func (a *AdminDefaultsCache) getAdminGlobal(ctx context.Context, setting string, out any) error {
	key := AdminGlobalKey(setting)
	val, err := a.client.Get(ctx, key)
	if err == nil {
		if derr := json.Unmarshal([]byte(val), out); derr == nil {
			return nil
		}
		a.log.Warn().Str("setting", setting).Msg("Corrupt cached default, rebuilding mirror")
		err = ErrCacheMiss
	}
	if errors.Is(err, ErrCacheMiss) {
		defaults, lerr := a.loader.Load()
		if lerr != nil {
			return fmt.Errorf("load defaults file: %w", lerr)
		}
		if err := a.writeMirror(ctx, defaults, reloadCacheMiss); err != nil {
			return err
		}
		val, err = a.client.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return ErrSettingNotFound
		}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return fmt.Errorf("decode default %s: %w", setting, err)
	}
	return nil
}

// GetDefaultCircuitBreaker returns the admin default circuit breaker.
func (a *AdminDefaultsCache) GetDefaultCircuitBreaker(ctx context.Context) (*settings.GlobalCircuitBreaker, error) {
	var cb settings.GlobalCircuitBreaker
	if err := a.getAdminGlobal(ctx, settings.SettingCircuitBreaker, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

// GetDefaultLLMSettings returns the admin default AI configuration.
func (a *AdminDefaultsCache) GetDefaultLLMSettings(ctx context.Context) (*settings.LLMSettings, error) {
	var llm settings.LLMSettings
	if err := a.getAdminGlobal(ctx, settings.SettingLLMConfig, &llm); err != nil {
		return nil, err
	}
	return &llm, nil
}

// GetDefaultCapitalAllocation returns the admin default capital split.
func (a *AdminDefaultsCache) GetDefaultCapitalAllocation(ctx context.Context) (*settings.CapitalAllocation, error) {
	var ca settings.CapitalAllocation
	if err := a.getAdminGlobal(ctx, settings.SettingCapitalAllocation, &ca); err != nil {
		return nil, err
	}
	return &ca, nil
}

// GetDefaultGlobalTrading returns the admin default trading parameters.
func (a *AdminDefaultsCache) GetDefaultGlobalTrading(ctx context.Context) (*settings.GlobalTrading, error) {
	var gt settings.GlobalTrading
	if err := a.getAdminGlobal(ctx, settings.SettingGlobalTrading, &gt); err != nil {
		return nil, err
	}
	return &gt, nil
}

// GetDefaultSafetySettings returns the admin default safety settings for a
// mode, with reload-and-retry on a miss.
func (a *AdminDefaultsCache) GetDefaultSafetySettings(ctx context.Context, mode string) (*settings.SafetySettings, error) {
	key := AdminSafetyKey(mode)
	val, err := a.client.Get(ctx, key)
	if err == nil {
		var s settings.SafetySettings
		if derr := json.Unmarshal([]byte(val), &s); derr == nil {
			return &s, nil
		}
		a.log.Warn().Str("mode", mode).Msg("Corrupt cached default safety settings, rebuilding mirror")
		err = ErrCacheMiss
	}
	if errors.Is(err, ErrCacheMiss) {
		defaults, lerr := a.loader.Load()
		if lerr != nil {
			return nil, fmt.Errorf("load defaults file: %w", lerr)
		}
		if err := a.writeMirror(ctx, defaults, reloadCacheMiss); err != nil {
			return nil, err
		}
		val, err = a.client.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrSettingNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	var s settings.SafetySettings
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("decode default safety %s: %w", mode, err)
	}
	return &s, nil
}

// GetModeFullConfig assembles a mode's complete default configuration from
// the mirror.
func (a *AdminDefaultsCache) GetModeFullConfig(ctx context.Context, mode string) (*settings.ModeConfig, error) {
	groups := settings.GroupKeys()
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = AdminModeGroupKey(mode, g)
	}

	vals, err := a.client.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	cfg, found, corrupt := a.mergeDefaultGroups(mode, groups, vals)
	if corrupt {
		defaults, lerr := a.loader.Load()
		if lerr != nil {
			return nil, fmt.Errorf("load defaults file: %w", lerr)
		}
		if err := a.writeMirror(ctx, defaults, reloadCacheMiss); err != nil {
			return nil, err
		}
		if vals, err = a.client.MGet(ctx, keys...); err != nil {
			return nil, err
		}
		cfg, found, _ = a.mergeDefaultGroups(mode, groups, vals)
	}
	if !found {
		return nil, ErrSettingNotFound
	}
	return cfg, nil
}

// mergeDefaultGroups assembles a mode config from mirror values, skipping
// values that no longer decode and reporting them so the caller can rebuild
// the mirror.
func (a *AdminDefaultsCache) mergeDefaultGroups(mode string, groups []string, vals [][]byte) (cfg *settings.ModeConfig, found, corrupt bool) {
	cfg = &settings.ModeConfig{ModeName: mode}
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		if err := settings.MergeGroup(cfg, groups[i], raw); err != nil {
			a.log.Warn().Err(err).Str("mode", mode).Str("group", groups[i]).
				Msg("Corrupt cached default group, treating as miss")
			corrupt = true
			continue
		}
		found = true
	}
	return cfg, found, corrupt
}

// AdminDefaultsSnapshot is a full dump of the mirrored admin defaults.
type AdminDefaultsSnapshot struct {
	Modes             map[string]*settings.ModeConfig     `json:"modes"`
	CircuitBreaker    *settings.GlobalCircuitBreaker      `json:"circuit_breaker"`
	LLMConfig         *settings.LLMSettings               `json:"llm_config"`
	CapitalAllocation *settings.CapitalAllocation         `json:"capital_allocation"`
	GlobalTrading     *settings.GlobalTrading             `json:"global_trading"`
	Safety            map[string]*settings.SafetySettings `json:"safety"`
	Fingerprint       string                              `json:"fingerprint"`
}

// GetAllAdminDefaults assembles the entire mirror for admin UIs.
func (a *AdminDefaultsCache) GetAllAdminDefaults(ctx context.Context) (*AdminDefaultsSnapshot, error) {
	snap := &AdminDefaultsSnapshot{
		Modes:  make(map[string]*settings.ModeConfig),
		Safety: make(map[string]*settings.SafetySettings),
	}

	for _, mode := range settings.TradingModes {
		cfg, err := a.GetModeFullConfig(ctx, mode)
		if errors.Is(err, ErrSettingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.Modes[mode] = cfg
	}

	var err error
	if snap.CircuitBreaker, err = a.GetDefaultCircuitBreaker(ctx); err != nil {
		return nil, err
	}
	if snap.LLMConfig, err = a.GetDefaultLLMSettings(ctx); err != nil {
		return nil, err
	}
	if snap.CapitalAllocation, err = a.GetDefaultCapitalAllocation(ctx); err != nil {
		return nil, err
	}
	if snap.GlobalTrading, err = a.GetDefaultGlobalTrading(ctx); err != nil {
		return nil, err
	}
	for _, mode := range settings.SafetySettingsModes {
		safety, err := a.GetDefaultSafetySettings(ctx, mode)
		if err != nil {
			return nil, err
		}
		snap.Safety[mode] = safety
	}

	fp, err := a.client.Get(ctx, AdminDefaultsHashKey())
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}
	snap.Fingerprint = fp

	return snap, nil
}

// InvalidateAdminDefaults drops the whole mirror including the fingerprint,
// forcing the next read to rebuild from the file.
func (a *AdminDefaultsCache) InvalidateAdminDefaults(ctx context.Context) error {
	if err := a.client.DeletePattern(ctx, AdminModePattern()); err != nil {
		return err
	}
	for _, setting := range settings.CrossModeSettings {
		if err := a.client.Delete(ctx, AdminGlobalKey(setting)); err != nil {
			return err
		}
	}
	for _, mode := range settings.SafetySettingsModes {
		if err := a.client.Delete(ctx, AdminSafetyKey(mode)); err != nil {
			return err
		}
	}
	if err := a.client.Delete(ctx, AdminDefaultsHashKey()); err != nil {
		return err
	}
	a.log.Info().Msg("Admin defaults mirror invalidated")
	return nil
}

// GroupComparison reports how a user's group value relates to the admin
// default.
type GroupComparison struct {
	Mode         string          `json:"mode"`
	Group        string          `json:"group"`
	UserValue    json.RawMessage `json:"user_value,omitempty"`
	DefaultValue json.RawMessage `json:"default_value,omitempty"`
	Matches      bool            `json:"matches"`
}

// CompareUserGroupToDefault compares one of a user's group values against
// the admin default. Comparison is structural, so key order and whitespace
// differences do not count as drift.
func (a *AdminDefaultsCache) CompareUserGroupToDefault(ctx context.Context, users *SettingsCache, userID, mode, group string) (*GroupComparison, error) {
	cmp := &GroupComparison{Mode: mode, Group: group}

	userVal, err := users.GetModeGroup(ctx, userID, mode, group)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}
	cmp.UserValue = userVal

	defVal, err := a.GetAdminDefaultGroup(ctx, mode, group)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}
	cmp.DefaultValue = defVal

	cmp.Matches = jsonEqual(userVal, defVal)
	return cmp, nil
}

// jsonEqual compares two JSON documents structurally.
func jsonEqual(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// CopyDefaultsToNewUser seeds a new user's cache from the admin defaults
// mirror. The mirror is refreshed against the file first, then every mode
// group, cross-mode setting and safety key is copied cache-to-cache under
// the user's namespace. Seeding skips the durable store deliberately; the
// user's first real edits go through the normal write-through path.
// Individual copy failures are collected and logged, not fatal; only a
// degraded cache aborts the seed.
func (a *AdminDefaultsCache) CopyDefaultsToNewUser(ctx context.Context, userID string) error {
	if _, err := a.CheckAndRefreshIfChanged(ctx); err != nil {
		if err := a.LoadAdminDefaults(ctx); err != nil {
			return fmt.Errorf("refresh admin defaults: %w", err)
		}
	}

	var errs []error
	copyKey := func(src, dst string) error {
		val, err := a.client.Get(ctx, src)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		if err == nil {
			err = a.client.Set(ctx, dst, []byte(val), 0)
		}
		if errors.Is(err, ErrCacheUnavailable) {
			return err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dst, err))
		}
		return nil
	}

	for _, mode := range settings.TradingModes {
		for _, group := range settings.GroupKeys() {
			if err := copyKey(AdminModeGroupKey(mode, group), UserModeGroupKey(userID, mode, group)); err != nil {
				return err
			}
		}
	}
	for _, setting := range settings.CrossModeSettings {
		if err := copyKey(AdminGlobalKey(setting), UserCrossModeKey(userID, setting)); err != nil {
			return err
		}
	}
	for _, mode := range settings.SafetySettingsModes {
		if err := copyKey(AdminSafetyKey(mode), UserSafetyKey(userID, mode)); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		a.log.Warn().Err(errors.Join(errs...)).Str("user_id", userID).
			Int("failed", len(errs)).Msg("User seeded from admin defaults with partial failures")
		return nil
	}
	a.log.Info().Str("user_id", userID).Msg("Seeded new user from admin defaults")
	return nil
}
