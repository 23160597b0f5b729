package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/openfunk/modetrader/internal/settings"
)

// Postgres implements Repository on a pgx connection pool. Mode configs and
// cross-mode settings are stored as JSONB documents, one row per (user,
// setting); group-level updates patch the document in place with jsonb_set
// so concurrent updates to different groups of the same mode do not clobber
// each other.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the connection pool and verifies connectivity.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created successfully")

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// GetModeConfig returns the stored configuration for one trading mode.
func (p *Postgres) GetModeConfig(ctx context.Context, userID, mode string) (*settings.ModeConfig, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT config FROM user_mode_configs WHERE user_id = $1 AND mode = $2`,
		userID, mode,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query mode config %s/%s: %w", userID, mode, err)
	}

	var cfg settings.ModeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode mode config %s/%s: %w", userID, mode, err)
	}
	cfg.ModeName = mode
	return &cfg, nil
}

// SaveModeConfig upserts the full configuration document for one mode.
func (p *Postgres) SaveModeConfig(ctx context.Context, userID string, cfg *settings.ModeConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode mode config: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO user_mode_configs (user_id, mode, config, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, mode)
		DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		userID, cfg.ModeName, raw,
	)
	if err != nil {
		return fmt.Errorf("save mode config %s/%s: %w", userID, cfg.ModeName, err)
	}
	return nil
}

// UpdateModeGroup patches one group sub-document inside the stored config.
// The enabled group is a scalar field, not a sub-document, so it is patched
// at its own path. Requires an existing row; updating a group of a mode the
// user never had is reported as ErrNotFound.
func (p *Postgres) UpdateModeGroup(ctx context.Context, userID, mode, group string, raw []byte) error {
	var tag string
	var args []any
	if group == "enabled" {
		tag = `UPDATE user_mode_configs
			SET config = jsonb_set(config, '{enabled}', $3::jsonb -> 'enabled'), updated_at = NOW()
			WHERE user_id = $1 AND mode = $2`
		args = []any{userID, mode, raw}
	} else {
		tag = `UPDATE user_mode_configs
			SET config = jsonb_set(config, ARRAY[$3], $4::jsonb), updated_at = NOW()
			WHERE user_id = $1 AND mode = $2`
		args = []any{userID, mode, group, raw}
	}

	ct, err := p.pool.Exec(ctx, tag, args...)
	if err != nil {
		return fmt.Errorf("update mode group %s/%s/%s: %w", userID, mode, group, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// getCrossMode reads one cross-mode setting document into out.
func (p *Postgres) getCrossMode(ctx context.Context, userID, setting string, out any) error {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM user_cross_mode_settings WHERE user_id = $1 AND setting_key = $2`,
		userID, setting,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query %s for %s: %w", setting, userID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s for %s: %w", setting, userID, err)
	}
	return nil
}

// saveCrossMode upserts one cross-mode setting document.
func (p *Postgres) saveCrossMode(ctx context.Context, userID, setting string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", setting, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO user_cross_mode_settings (user_id, setting_key, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, setting_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		userID, setting, raw,
	)
	if err != nil {
		return fmt.Errorf("save %s for %s: %w", setting, userID, err)
	}
	return nil
}

func (p *Postgres) GetGlobalCircuitBreaker(ctx context.Context, userID string) (*settings.GlobalCircuitBreaker, error) {
	var cb settings.GlobalCircuitBreaker
	if err := p.getCrossMode(ctx, userID, settings.SettingCircuitBreaker, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

func (p *Postgres) SaveGlobalCircuitBreaker(ctx context.Context, userID string, cb *settings.GlobalCircuitBreaker) error {
	return p.saveCrossMode(ctx, userID, settings.SettingCircuitBreaker, cb)
}

func (p *Postgres) GetLLMSettings(ctx context.Context, userID string) (*settings.LLMSettings, error) {
	var llm settings.LLMSettings
	if err := p.getCrossMode(ctx, userID, settings.SettingLLMConfig, &llm); err != nil {
		return nil, err
	}
	return &llm, nil
}

func (p *Postgres) SaveLLMSettings(ctx context.Context, userID string, llm *settings.LLMSettings) error {
	return p.saveCrossMode(ctx, userID, settings.SettingLLMConfig, llm)
}

func (p *Postgres) GetCapitalAllocation(ctx context.Context, userID string) (*settings.CapitalAllocation, error) {
	var ca settings.CapitalAllocation
	if err := p.getCrossMode(ctx, userID, settings.SettingCapitalAllocation, &ca); err != nil {
		return nil, err
	}
	return &ca, nil
}

func (p *Postgres) SaveCapitalAllocation(ctx context.Context, userID string, ca *settings.CapitalAllocation) error {
	return p.saveCrossMode(ctx, userID, settings.SettingCapitalAllocation, ca)
}

func (p *Postgres) GetGlobalTrading(ctx context.Context, userID string) (*settings.GlobalTrading, error) {
	var gt settings.GlobalTrading
	if err := p.getCrossMode(ctx, userID, settings.SettingGlobalTrading, &gt); err != nil {
		return nil, err
	}
	return &gt, nil
}

func (p *Postgres) SaveGlobalTrading(ctx context.Context, userID string, gt *settings.GlobalTrading) error {
	return p.saveCrossMode(ctx, userID, settings.SettingGlobalTrading, gt)
}

// GetSafetySettings returns a user's per-mode safety controls.
func (p *Postgres) GetSafetySettings(ctx context.Context, userID, mode string) (*settings.SafetySettings, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM user_safety_settings WHERE user_id = $1 AND mode = $2`,
		userID, mode,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query safety settings %s/%s: %w", userID, mode, err)
	}

	var s settings.SafetySettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode safety settings %s/%s: %w", userID, mode, err)
	}
	s.Mode = mode
	return &s, nil
}

// SaveSafetySettings upserts a user's per-mode safety controls.
func (p *Postgres) SaveSafetySettings(ctx context.Context, userID, mode string, s *settings.SafetySettings) error {
	s.Mode = mode
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode safety settings: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO user_safety_settings (user_id, mode, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, mode)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		userID, mode, raw,
	)
	if err != nil {
		return fmt.Errorf("save safety settings %s/%s: %w", userID, mode, err)
	}
	return nil
}
