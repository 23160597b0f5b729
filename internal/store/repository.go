// Package store is the durable persistence layer for user trading settings.
// The cache layer reads through it on misses and writes through it on
// updates; nothing else in the system talks to Postgres directly.
package store

import (
	"context"
	"errors"

	"github.com/openfunk/modetrader/internal/settings"
)

// ErrNotFound is returned when a user has no stored row for the requested
// setting. Callers fall back to admin defaults or hardcoded defaults.
var ErrNotFound = errors.New("store: setting not found")

// Repository is the durable-store contract the cache services depend on.
// Implementations must return ErrNotFound for absent rows so callers can
// distinguish "no data yet" from an I/O failure.
type Repository interface {
	// GetModeConfig returns the full stored configuration for one of a
	// user's trading modes.
	GetModeConfig(ctx context.Context, userID, mode string) (*settings.ModeConfig, error)
	// SaveModeConfig upserts the full configuration for one mode.
	SaveModeConfig(ctx context.Context, userID string, cfg *settings.ModeConfig) error
	// UpdateModeGroup replaces a single group sub-document inside a mode's
	// stored configuration. raw is the group's JSON encoding.
	UpdateModeGroup(ctx context.Context, userID, mode, group string, raw []byte) error

	GetGlobalCircuitBreaker(ctx context.Context, userID string) (*settings.GlobalCircuitBreaker, error)
	SaveGlobalCircuitBreaker(ctx context.Context, userID string, cb *settings.GlobalCircuitBreaker) error

	GetLLMSettings(ctx context.Context, userID string) (*settings.LLMSettings, error)
	SaveLLMSettings(ctx context.Context, userID string, llm *settings.LLMSettings) error

	GetCapitalAllocation(ctx context.Context, userID string) (*settings.CapitalAllocation, error)
	SaveCapitalAllocation(ctx context.Context, userID string, ca *settings.CapitalAllocation) error

	GetGlobalTrading(ctx context.Context, userID string) (*settings.GlobalTrading, error)
	SaveGlobalTrading(ctx context.Context, userID string, gt *settings.GlobalTrading) error

	GetSafetySettings(ctx context.Context, userID, mode string) (*settings.SafetySettings, error)
	SaveSafetySettings(ctx context.Context, userID, mode string, s *settings.SafetySettings) error
}
