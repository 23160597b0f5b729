package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfunk/modetrader/internal/metrics"
	"github.com/openfunk/modetrader/internal/settings"
	"github.com/openfunk/modetrader/internal/store"
)

// SettingsCache serves per-user trading settings with cache-aside reads and
// write-through updates. Reads come from Redis; a miss populates the cache
// from the durable store and then re-reads the cache, so the value returned
// is always the one a concurrent reader would see. While the Redis breaker
// is open every operation fails fast with ErrCacheUnavailable; the durable
// store is never read directly on behalf of a degraded cache.
type SettingsCache struct {
	client *Client
	repo   store.Repository
	// defaults supplies file-based fallbacks for ResetModeGroup when the
	// admin defaults mirror has no value for the group.
	defaults *settings.Loader
	log      zerolog.Logger
}

// NewSettingsCache wires the user settings service.
func NewSettingsCache(client *Client, repo store.Repository, defaults *settings.Loader, logger zerolog.Logger) *SettingsCache {
	return &SettingsCache{
		client:   client,
		repo:     repo,
		defaults: defaults,
		log:      logger,
	}
}

// IsHealthy reports whether the underlying cache client is usable.
func (s *SettingsCache) IsHealthy() bool {
	return s.client.IsHealthy()
}

// validGroup reports whether key names one of the 20 setting groups.
func validGroup(key string) bool {
	return settings.IsGroupKey(key)
}

// LoadUserSettings bulk-loads every cacheable setting of one user from the
// durable store into Redis: 80 mode group keys, 4 cross-mode keys and 4
// safety keys. Modes and settings with no stored row are skipped, and
// per-mode failures are collected and logged rather than failing the load;
// only a degraded cache aborts it.
func (s *SettingsCache) LoadUserSettings(ctx context.Context, userID string) error {
	if !s.client.IsHealthy() {
		return ErrCacheUnavailable
	}

	var errs []error
	for _, mode := range settings.TradingModes {
		if err := s.loadModeToCache(ctx, userID, mode); err != nil {
			if errors.Is(err, ErrCacheUnavailable) {
				return err
			}
			errs = append(errs, fmt.Errorf("mode %s: %w", mode, err))
		}
	}
	if err := s.loadCrossModeSettings(ctx, userID); err != nil {
		if errors.Is(err, ErrCacheUnavailable) {
			return err
		}
		errs = append(errs, err)
	}
	if err := s.loadSafetySettings(ctx, userID); err != nil {
		if errors.Is(err, ErrCacheUnavailable) {
			return err
		}
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		s.log.Warn().Err(errors.Join(errs...)).Str("user_id", userID).
			Int("failed", len(errs)).Msg("User settings partially loaded")
		return nil
	}
	s.log.Info().Str("user_id", userID).Msg("User settings loaded into cache")
	return nil
}

// loadModeToCache writes every set group of one mode into the cache.
func (s *SettingsCache) loadModeToCache(ctx context.Context, userID, mode string) error {
	cfg, err := s.repo.GetModeConfig(ctx, userID, mode)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debug().Str("user_id", userID).Str("mode", mode).Msg("No stored config for mode, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	return s.cacheModeGroups(ctx, userID, cfg)
}

// cacheModeGroups writes each set group of cfg to its cache key. Settings
// keys carry no TTL; invalidation is explicit.
func (s *SettingsCache) cacheModeGroups(ctx context.Context, userID string, cfg *settings.ModeConfig) error {
	for _, group := range settings.GroupKeys() {
		v := settings.ExtractGroup(cfg, group)
		if v == nil {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode group %s: %w", group, err)
		}
		if err := s.client.Set(ctx, UserModeGroupKey(userID, cfg.ModeName, group), raw, 0); err != nil {
			return err
		}
	}
	return nil
}

// loadCrossModeSettings caches the four cross-mode settings that exist in
// the durable store.
func (s *SettingsCache) loadCrossModeSettings(ctx context.Context, userID string) error {
	type loader struct {
		setting string
		get     func() (any, error)
	}
	loaders := []loader{
		{settings.SettingCircuitBreaker, func() (any, error) { return s.repo.GetGlobalCircuitBreaker(ctx, userID) }},
		{settings.SettingLLMConfig, func() (any, error) { return s.repo.GetLLMSettings(ctx, userID) }},
		{settings.SettingCapitalAllocation, func() (any, error) { return s.repo.GetCapitalAllocation(ctx, userID) }},
		{settings.SettingGlobalTrading, func() (any, error) { return s.repo.GetGlobalTrading(ctx, userID) }},
	}

	var errs []error
	for _, l := range loaders {
		v, err := l.get()
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", l.setting, err))
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", l.setting, err))
			continue
		}
		if err := s.client.Set(ctx, UserCrossModeKey(userID, l.setting), raw, 0); err != nil {
			if errors.Is(err, ErrCacheUnavailable) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadSafetySettings caches the per-mode safety settings rows.
func (s *SettingsCache) loadSafetySettings(ctx context.Context, userID string) error {
	var errs []error
	for _, mode := range settings.SafetySettingsModes {
		safety, err := s.repo.GetSafetySettings(ctx, userID, mode)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load safety %s: %w", mode, err))
			continue
		}
		raw, err := json.Marshal(safety)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode safety %s: %w", mode, err))
			continue
		}
		if err := s.client.Set(ctx, UserSafetyKey(userID, mode), raw, 0); err != nil {
			if errors.Is(err, ErrCacheUnavailable) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetModeGroup returns the JSON value of one setting group. Cache hit
// returns directly; a miss populates the whole mode from the durable store
// and then re-reads the cache, so the returned bytes are what the cache now
// holds. A group absent from both cache and store is ErrSettingNotFound.
func (s *SettingsCache) GetModeGroup(ctx context.Context, userID, mode, group string) (json.RawMessage, error) {
	if !validGroup(group) {
		return nil, fmt.Errorf("unknown setting group %q", group)
	}

	key := UserModeGroupKey(userID, mode, group)
	val, err := s.client.Get(ctx, key)
	if err == nil {
		metrics.CacheHits.Inc()
		metrics.SettingsReads.WithLabelValues(metrics.ReadHit).Inc()
		return json.RawMessage(val), nil
	}
	if errors.Is(err, ErrCacheUnavailable) {
		metrics.SettingsReads.WithLabelValues(metrics.ReadUnavailable).Inc()
		return nil, err
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	metrics.CacheMisses.Inc()
	if err := s.populateModeFromStore(ctx, userID, mode); err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			metrics.SettingsReads.WithLabelValues(metrics.ReadNotFound).Inc()
		}
		return nil, err
	}

	// Re-read from the cache rather than returning the store value; the
	// cache is the source of truth for readers once populated.
	val, err = s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			metrics.SettingsReads.WithLabelValues(metrics.ReadNotFound).Inc()
			return nil, ErrSettingNotFound
		}
		return nil, err
	}

	metrics.SettingsReads.WithLabelValues(metrics.ReadPopulated).Inc()
	return json.RawMessage(val), nil
}

// populateModeFromStore loads a mode's full configuration from the durable
// store and caches every set group. A user with no stored row for the mode
// is ErrSettingNotFound.
func (s *SettingsCache) populateModeFromStore(ctx context.Context, userID, mode string) error {
	cfg, err := s.repo.GetModeConfig(ctx, userID, mode)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSettingNotFound
	}
	if err != nil {
		return fmt.Errorf("load mode config %s/%s: %w", userID, mode, err)
	}

	s.log.Debug().Str("user_id", userID).Str("mode", mode).Msg("Populating mode groups from store")
	return s.cacheModeGroups(ctx, userID, cfg)
}

// GetModeConfig assembles the full configuration of one mode from the 20
// group keys in a single MGET. Missing groups trigger one populate pass from
// the durable store followed by a second MGET; groups still absent after
// that stay nil on the result.
func (s *SettingsCache) GetModeConfig(ctx context.Context, userID, mode string) (*settings.ModeConfig, error) {
	groups := settings.GroupKeys()
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = UserModeGroupKey(userID, mode, g)
	}

	vals, err := s.client.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	cfg, found, corrupt := s.mergeModeGroups(mode, groups, vals)
	missing := corrupt
	for _, v := range vals {
		if v == nil {
			missing = true
			break
		}
	}
	if missing {
		err := s.populateModeFromStore(ctx, userID, mode)
		if err != nil && !errors.Is(err, ErrSettingNotFound) {
			return nil, err
		}
		if err == nil {
			if vals, err = s.client.MGet(ctx, keys...); err != nil {
				return nil, err
			}
			cfg, found, _ = s.mergeModeGroups(mode, groups, vals)
		}
	}
	if !found {
		return nil, ErrSettingNotFound
	}
	return cfg, nil
}

// mergeModeGroups assembles a config from raw group values. A value that no
// longer decodes is skipped and reported as corrupt so the caller can
// repopulate it from the store.
func (s *SettingsCache) mergeModeGroups(mode string, groups []string, vals [][]byte) (cfg *settings.ModeConfig, found, corrupt bool) {
	cfg = &settings.ModeConfig{ModeName: mode}
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		if err := settings.MergeGroup(cfg, groups[i], raw); err != nil {
			s.log.Warn().Err(err).Str("mode", mode).Str("group", groups[i]).
				Msg("Corrupt cached group value, treating as miss")
			corrupt = true
			continue
		}
		found = true
	}
	return cfg, found, corrupt
}

// UpdateModeGroup writes one group through to the durable store and then
// refreshes the cache. The store write is authoritative: a store failure
// fails the update and leaves the cache untouched; a cache refresh failure
// after a successful store write is logged but not returned, since the next
// read will repopulate.
func (s *SettingsCache) UpdateModeGroup(ctx context.Context, userID, mode, group string, raw json.RawMessage) error {
	if !validGroup(group) {
		return fmt.Errorf("unknown setting group %q", group)
	}
	// Reject payloads that do not decode as the group's type before they
	// reach the store.
	var scratch settings.ModeConfig
	if err := settings.MergeGroup(&scratch, group, raw); err != nil {
		return fmt.Errorf("invalid %s payload: %w", group, err)
	}

	if err := s.repo.UpdateModeGroup(ctx, userID, mode, group, raw); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteStoreError).Inc()
		return fmt.Errorf("store update %s/%s/%s: %w", userID, mode, group, err)
	}

	if err := s.client.Set(ctx, UserModeGroupKey(userID, mode, group), raw, 0); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteCacheWarn).Inc()
		s.log.Warn().Err(err).
			Str("user_id", userID).Str("mode", mode).Str("group", group).
			Msg("Store updated but cache refresh failed")
		return nil
	}

	metrics.SettingsWrites.WithLabelValues(metrics.WriteOK).Inc()
	return nil
}

// getCrossModeSetting is the shared cache-aside read for the four cross-mode
// settings. fallback, when non-nil, supplies a default for users with no
// stored row; the fallback is cached so subsequent reads hit.
func getCrossModeSetting[T any](
	ctx context.Context,
	s *SettingsCache,
	userID, setting string,
	fromStore func(context.Context, string) (*T, error),
	fallback func() *T,
) (*T, error) {
	key := UserCrossModeKey(userID, setting)
	val, err := s.client.Get(ctx, key)
	if err == nil {
		metrics.CacheHits.Inc()
		var out T
		if derr := json.Unmarshal([]byte(val), &out); derr == nil {
			metrics.SettingsReads.WithLabelValues(metrics.ReadHit).Inc()
			return &out, nil
		}
		// A corrupt entry reads as a miss; the populate path overwrites it.
		s.log.Warn().Str("user_id", userID).Str("setting", setting).
			Msg("Corrupt cached value, repopulating from store")
		err = ErrCacheMiss
	}
	if errors.Is(err, ErrCacheUnavailable) {
		metrics.SettingsReads.WithLabelValues(metrics.ReadUnavailable).Inc()
		return nil, err
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	metrics.CacheMisses.Inc()
	v, err := fromStore(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		if fallback == nil {
			metrics.SettingsReads.WithLabelValues(metrics.ReadNotFound).Inc()
			return nil, ErrSettingNotFound
		}
		v = fallback()
	} else if err != nil {
		return nil, fmt.Errorf("load %s for %s: %w", setting, userID, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", setting, err)
	}
	if err := s.client.Set(ctx, key, raw, 0); err != nil {
		return nil, err
	}

	// Re-read so the caller sees exactly what the cache now holds.
	val, err = s.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", setting, err)
	}
	metrics.SettingsReads.WithLabelValues(metrics.ReadPopulated).Inc()
	return &out, nil
}

// updateCrossModeSetting is the shared write-through path for cross-mode
// settings: durable store first, cache refresh best-effort.
func updateCrossModeSetting[T any](
	ctx context.Context,
	s *SettingsCache,
	userID, setting string,
	v *T,
	toStore func(context.Context, string, *T) error,
) error {
	if err := toStore(ctx, userID, v); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteStoreError).Inc()
		return fmt.Errorf("store update %s for %s: %w", setting, userID, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", setting, err)
	}
	if err := s.client.Set(ctx, UserCrossModeKey(userID, setting), raw, 0); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteCacheWarn).Inc()
		s.log.Warn().Err(err).
			Str("user_id", userID).Str("setting", setting).
			Msg("Store updated but cache refresh failed")
		return nil
	}

	metrics.SettingsWrites.WithLabelValues(metrics.WriteOK).Inc()
	return nil
}

// GetCircuitBreaker returns the user's account-wide circuit breaker limits.
func (s *SettingsCache) GetCircuitBreaker(ctx context.Context, userID string) (*settings.GlobalCircuitBreaker, error) {
	return getCrossModeSetting(ctx, s, userID, settings.SettingCircuitBreaker, s.repo.GetGlobalCircuitBreaker, nil)
}

// UpdateCircuitBreaker writes the account-wide circuit breaker through.
func (s *SettingsCache) UpdateCircuitBreaker(ctx context.Context, userID string, cb *settings.GlobalCircuitBreaker) error {
	return updateCrossModeSetting(ctx, s, userID, settings.SettingCircuitBreaker, cb, s.repo.SaveGlobalCircuitBreaker)
}

// GetLLMSettings returns the user's AI provider configuration.
func (s *SettingsCache) GetLLMSettings(ctx context.Context, userID string) (*settings.LLMSettings, error) {
	return getCrossModeSetting(ctx, s, userID, settings.SettingLLMConfig, s.repo.GetLLMSettings, nil)
}

// UpdateLLMSettings writes the AI provider configuration through.
func (s *SettingsCache) UpdateLLMSettings(ctx context.Context, userID string, llm *settings.LLMSettings) error {
	return updateCrossModeSetting(ctx, s, userID, settings.SettingLLMConfig, llm, s.repo.SaveLLMSettings)
}

// GetCapitalAllocation returns the user's capital split across modes.
func (s *SettingsCache) GetCapitalAllocation(ctx context.Context, userID string) (*settings.CapitalAllocation, error) {
	return getCrossModeSetting(ctx, s, userID, settings.SettingCapitalAllocation, s.repo.GetCapitalAllocation, nil)
}

// UpdateCapitalAllocation writes the capital split through.
func (s *SettingsCache) UpdateCapitalAllocation(ctx context.Context, userID string, ca *settings.CapitalAllocation) error {
	return updateCrossModeSetting(ctx, s, userID, settings.SettingCapitalAllocation, ca, s.repo.SaveCapitalAllocation)
}

// GetGlobalTrading returns the user's account-wide trading parameters.
// Users without a stored row get the hardcoded defaults, which are cached
// like a real value. Like every read it hard-stops with
// ErrCacheUnavailable while the breaker is open.
func (s *SettingsCache) GetGlobalTrading(ctx context.Context, userID string) (*settings.GlobalTrading, error) {
	return getCrossModeSetting(ctx, s, userID, settings.SettingGlobalTrading, s.repo.GetGlobalTrading, settings.DefaultGlobalTrading)
}

// UpdateGlobalTrading writes the account-wide trading parameters through.
func (s *SettingsCache) UpdateGlobalTrading(ctx context.Context, userID string, gt *settings.GlobalTrading) error {
	return updateCrossModeSetting(ctx, s, userID, settings.SettingGlobalTrading, gt, s.repo.SaveGlobalTrading)
}

// GetSafetySettings returns a user's per-mode safety controls, falling back
// to conservative defaults for users with no stored row.
func (s *SettingsCache) GetSafetySettings(ctx context.Context, userID, mode string) (*settings.SafetySettings, error) {
	key := UserSafetyKey(userID, mode)
	val, err := s.client.Get(ctx, key)
	if err == nil {
		metrics.CacheHits.Inc()
		var out settings.SafetySettings
		if derr := json.Unmarshal([]byte(val), &out); derr == nil {
			return &out, nil
		}
		s.log.Warn().Str("user_id", userID).Str("mode", mode).
			Msg("Corrupt cached safety settings, repopulating from store")
		err = ErrCacheMiss
	}
	if errors.Is(err, ErrCacheUnavailable) {
		return nil, err
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	metrics.CacheMisses.Inc()
	safety, err := s.repo.GetSafetySettings(ctx, userID, mode)
	if errors.Is(err, store.ErrNotFound) {
		safety = settings.DefaultSafetySettings(mode)
	} else if err != nil {
		return nil, fmt.Errorf("load safety settings %s/%s: %w", userID, mode, err)
	}

	raw, err := json.Marshal(safety)
	if err != nil {
		return nil, fmt.Errorf("encode safety settings: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, 0); err != nil {
		return nil, err
	}

	// Re-read so the caller sees exactly what the cache now holds.
	val, err = s.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var out settings.SafetySettings
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("decode cached safety settings: %w", err)
	}
	return &out, nil
}

// UpdateSafetySettings writes a mode's safety controls through.
func (s *SettingsCache) UpdateSafetySettings(ctx context.Context, userID, mode string, safety *settings.SafetySettings) error {
	if err := s.repo.SaveSafetySettings(ctx, userID, mode, safety); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteStoreError).Inc()
		return fmt.Errorf("store update safety %s/%s: %w", userID, mode, err)
	}

	raw, err := json.Marshal(safety)
	if err != nil {
		return fmt.Errorf("encode safety settings: %w", err)
	}
	if err := s.client.Set(ctx, UserSafetyKey(userID, mode), raw, 0); err != nil {
		metrics.SettingsWrites.WithLabelValues(metrics.WriteCacheWarn).Inc()
		s.log.Warn().Err(err).
			Str("user_id", userID).Str("mode", mode).
			Msg("Store updated but safety cache refresh failed")
		return nil
	}

	metrics.SettingsWrites.WithLabelValues(metrics.WriteOK).Inc()
	return nil
}

// ResetModeGroup restores one group to the admin default: the admin
// defaults mirror if it has the group, otherwise the defaults file. The
// restored value goes through the normal write-through path so the store
// and cache stay consistent.
func (s *SettingsCache) ResetModeGroup(ctx context.Context, userID, mode, group string) error {
	if !validGroup(group) {
		return fmt.Errorf("unknown setting group %q", group)
	}

	raw, err := s.defaultGroupValue(ctx, mode, group)
	if err != nil {
		return err
	}
	return s.UpdateModeGroup(ctx, userID, mode, group, raw)
}

// defaultGroupValue resolves the default JSON for one mode group from the
// admin defaults mirror, falling back to the defaults file.
func (s *SettingsCache) defaultGroupValue(ctx context.Context, mode, group string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, AdminModeGroupKey(mode, group))
	if err == nil {
		return json.RawMessage(val), nil
	}
	if errors.Is(err, ErrCacheUnavailable) {
		return nil, err
	}

	defaults, err := s.defaults.Load()
	if err != nil {
		return nil, fmt.Errorf("load defaults file: %w", err)
	}
	cfg, ok := defaults.ModeConfigs[mode]
	if !ok {
		return nil, fmt.Errorf("no defaults for mode %q: %w", mode, ErrSettingNotFound)
	}
	v := settings.ExtractGroup(cfg, group)
	if v == nil {
		return nil, fmt.Errorf("no default for group %s/%s: %w", mode, group, ErrSettingNotFound)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode default group %s: %w", group, err)
	}
	return raw, nil
}

// GetModeEnabled reports whether a mode is enabled for the user. A user
// with no configuration for the mode is simply disabled, not an error.
func (s *SettingsCache) GetModeEnabled(ctx context.Context, userID, mode string) (bool, error) {
	raw, err := s.GetModeGroup(ctx, userID, mode, "enabled")
	if errors.Is(err, ErrSettingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var flag settings.EnabledFlag
	if err := json.Unmarshal(raw, &flag); err != nil {
		return false, fmt.Errorf("decode enabled flag: %w", err)
	}
	return flag.Enabled, nil
}

// GetEnabledModes returns the modes the user has enabled, in canonical
// order.
func (s *SettingsCache) GetEnabledModes(ctx context.Context, userID string) ([]string, error) {
	var enabled []string
	for _, mode := range settings.TradingModes {
		on, err := s.GetModeEnabled(ctx, userID, mode)
		if err != nil {
			return nil, err
		}
		if on {
			enabled = append(enabled, mode)
		}
	}
	return enabled, nil
}

// UserSettingsSnapshot is a full dump of one user's settings, assembled
// from the cache.
type UserSettingsSnapshot struct {
	UserID            string                              `json:"user_id"`
	Modes             map[string]*settings.ModeConfig     `json:"modes"`
	CircuitBreaker    *settings.GlobalCircuitBreaker      `json:"circuit_breaker,omitempty"`
	LLMConfig         *settings.LLMSettings               `json:"llm_config,omitempty"`
	CapitalAllocation *settings.CapitalAllocation         `json:"capital_allocation,omitempty"`
	GlobalTrading     *settings.GlobalTrading             `json:"global_trading,omitempty"`
	Safety            map[string]*settings.SafetySettings `json:"safety"`
}

// GetAllUserSettings assembles every setting of one user. Modes and
// cross-mode settings the user never configured are omitted;
// ErrCacheUnavailable aborts the whole snapshot.
func (s *SettingsCache) GetAllUserSettings(ctx context.Context, userID string) (*UserSettingsSnapshot, error) {
	snap := &UserSettingsSnapshot{
		UserID: userID,
		Modes:  make(map[string]*settings.ModeConfig),
		Safety: make(map[string]*settings.SafetySettings),
	}

	for _, mode := range settings.TradingModes {
		cfg, err := s.GetModeConfig(ctx, userID, mode)
		if errors.Is(err, ErrSettingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.Modes[mode] = cfg
	}

	if cb, err := s.GetCircuitBreaker(ctx, userID); err == nil {
		snap.CircuitBreaker = cb
	} else if !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}
	if llm, err := s.GetLLMSettings(ctx, userID); err == nil {
		snap.LLMConfig = llm
	} else if !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}
	if ca, err := s.GetCapitalAllocation(ctx, userID); err == nil {
		snap.CapitalAllocation = ca
	} else if !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}
	gt, err := s.GetGlobalTrading(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.GlobalTrading = gt

	for _, mode := range settings.SafetySettingsModes {
		safety, err := s.GetSafetySettings(ctx, userID, mode)
		if err != nil {
			return nil, err
		}
		snap.Safety[mode] = safety
	}

	return snap, nil
}

// InvalidateModeGroup drops one group key from the cache. The next read
// repopulates from the durable store.
func (s *SettingsCache) InvalidateModeGroup(ctx context.Context, userID, mode, group string) error {
	return s.client.Delete(ctx, UserModeGroupKey(userID, mode, group))
}

// InvalidateMode drops every group key of one mode.
func (s *SettingsCache) InvalidateMode(ctx context.Context, userID, mode string) error {
	return s.client.DeletePattern(ctx, UserModePattern(userID, mode))
}

// InvalidateAllModes drops every mode group key of one user.
func (s *SettingsCache) InvalidateAllModes(ctx context.Context, userID string) error {
	return s.client.DeletePattern(ctx, UserAllModesPattern(userID))
}

// InvalidateCrossModeSetting drops one cross-mode setting key.
func (s *SettingsCache) InvalidateCrossModeSetting(ctx context.Context, userID, setting string) error {
	return s.client.Delete(ctx, UserCrossModeKey(userID, setting))
}

// InvalidateSafetySettings drops every safety key of one user.
func (s *SettingsCache) InvalidateSafetySettings(ctx context.Context, userID string) error {
	return s.client.DeletePattern(ctx, UserSafetyPattern(userID))
}

// InvalidateAllUserSettings drops every cached setting of one user: mode
// groups, cross-mode settings and safety settings. Sequence counters are
// left alone.
func (s *SettingsCache) InvalidateAllUserSettings(ctx context.Context, userID string) error {
	if err := s.client.DeletePattern(ctx, UserAllModesPattern(userID)); err != nil {
		return err
	}
	for _, setting := range settings.CrossModeSettings {
		if err := s.client.Delete(ctx, UserCrossModeKey(userID, setting)); err != nil {
			return err
		}
	}
	if err := s.client.DeletePattern(ctx, UserSafetyPattern(userID)); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("Invalidated all cached settings")
	return nil
}

// IncrementDailySequence hands out the next trade sequence number for the
// user and date.
func (s *SettingsCache) IncrementDailySequence(ctx context.Context, userID, dateKey string) (int64, error) {
	return s.client.IncrementDailySequence(ctx, userID, dateKey)
}

// GetCurrentSequence returns the current trade sequence number without
// advancing it.
func (s *SettingsCache) GetCurrentSequence(ctx context.Context, userID, dateKey string) (int64, error) {
	return s.client.GetCurrentSequence(ctx, userID, dateKey)
}
