package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfunk/modetrader/internal/cache"
	"github.com/openfunk/modetrader/internal/settings"
	"github.com/openfunk/modetrader/internal/store"
)

// memRepo is a minimal in-memory store.Repository for endpoint tests.
type memRepo struct {
	modeConfigs map[string]*settings.ModeConfig
	globals     map[string][]byte
	safety      map[string]*settings.SafetySettings
}

func newMemRepo() *memRepo {
	return &memRepo{
		modeConfigs: make(map[string]*settings.ModeConfig),
		globals:     make(map[string][]byte),
		safety:      make(map[string]*settings.SafetySettings),
	}
}

func (m *memRepo) GetModeConfig(ctx context.Context, userID, mode string) (*settings.ModeConfig, error) {
	cfg, ok := m.modeConfigs[userID+"/"+mode]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (m *memRepo) SaveModeConfig(ctx context.Context, userID string, cfg *settings.ModeConfig) error {
	cp := *cfg
	m.modeConfigs[userID+"/"+cfg.ModeName] = &cp
	return nil
}

func (m *memRepo) UpdateModeGroup(ctx context.Context, userID, mode, group string, raw []byte) error {
	cfg, ok := m.modeConfigs[userID+"/"+mode]
	if !ok {
		return store.ErrNotFound
	}
	return settings.MergeGroup(cfg, group, raw)
}

func (m *memRepo) getGlobal(setting, userID string, out any) error {
	raw, ok := m.globals[userID+"/"+setting]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *memRepo) saveGlobal(setting, userID string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	m.globals[userID+"/"+setting] = raw
	return nil
}

func (m *memRepo) GetGlobalCircuitBreaker(ctx context.Context, userID string) (*settings.GlobalCircuitBreaker, error) {
	var cb settings.GlobalCircuitBreaker
	if err := m.getGlobal(settings.SettingCircuitBreaker, userID, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

func (m *memRepo) SaveGlobalCircuitBreaker(ctx context.Context, userID string, cb *settings.GlobalCircuitBreaker) error {
	return m.saveGlobal(settings.SettingCircuitBreaker, userID, cb)
}

func (m *memRepo) GetLLMSettings(ctx context.Context, userID string) (*settings.LLMSettings, error) {
	var llm settings.LLMSettings
	if err := m.getGlobal(settings.SettingLLMConfig, userID, &llm); err != nil {
		return nil, err
	}
	return &llm, nil
}

func (m *memRepo) SaveLLMSettings(ctx context.Context, userID string, llm *settings.LLMSettings) error {
	return m.saveGlobal(settings.SettingLLMConfig, userID, llm)
}

func (m *memRepo) GetCapitalAllocation(ctx context.Context, userID string) (*settings.CapitalAllocation, error) {
	var ca settings.CapitalAllocation
	if err := m.getGlobal(settings.SettingCapitalAllocation, userID, &ca); err != nil {
		return nil, err
	}
	return &ca, nil
}

func (m *memRepo) SaveCapitalAllocation(ctx context.Context, userID string, ca *settings.CapitalAllocation) error {
	return m.saveGlobal(settings.SettingCapitalAllocation, userID, ca)
}

func (m *memRepo) GetGlobalTrading(ctx context.Context, userID string) (*settings.GlobalTrading, error) {
	var gt settings.GlobalTrading
	if err := m.getGlobal(settings.SettingGlobalTrading, userID, &gt); err != nil {
		return nil, err
	}
	return &gt, nil
}

func (m *memRepo) SaveGlobalTrading(ctx context.Context, userID string, gt *settings.GlobalTrading) error {
	return m.saveGlobal(settings.SettingGlobalTrading, userID, gt)
}

func (m *memRepo) GetSafetySettings(ctx context.Context, userID, mode string) (*settings.SafetySettings, error) {
	s, ok := m.safety[userID+"/"+mode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memRepo) SaveSafetySettings(ctx context.Context, userID, mode string, s *settings.SafetySettings) error {
	m.safety[userID+"/"+mode] = s
	return nil
}

// setupTestServer builds a full server against miniredis and an in-memory
// repo. The defaults loader points at a nonexistent file; endpoint tests
// that need defaults seed the cache directly.
func setupTestServer(t *testing.T) (*Server, *memRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := cache.NewClient(cache.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := newMemRepo()
	loader := settings.NewLoader("/nonexistent/default-settings.json")
	users := cache.NewSettingsCache(client, repo, loader, zerolog.Nop())
	admin := cache.NewAdminDefaultsCache(client, loader, zerolog.Nop())

	server := NewServer(Config{
		Host:   "127.0.0.1",
		Port:   0,
		Client: client,
		Users:  users,
		Admin:  admin,
	})
	return server, repo, mr
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	s, _, mr := setupTestServer(t)

	mr.SetError("down")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.client.Get(ctx, "probe")
	}
	mr.SetError("")

	w := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetModeGroup_Endpoint(t *testing.T) {
	s, repo, _ := setupTestServer(t)

	repo.modeConfigs["u1/scalp"] = &settings.ModeConfig{
		ModeName: "scalp",
		Enabled:  true,
		Risk:     &settings.RiskConfig{RiskLevel: "moderate"},
	}

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/scalp/groups/risk", "")
	require.Equal(t, http.StatusOK, w.Code)

	var risk settings.RiskConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &risk))
	assert.Equal(t, "moderate", risk.RiskLevel)
}

func TestGetModeGroup_NotFound(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/scalp/groups/risk", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetModeGroup_BadMode(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/hft/groups/risk", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetModeGroup_BadGroup(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/scalp/groups/bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetModeGroup_DegradedReturns503(t *testing.T) {
	s, repo, mr := setupTestServer(t)

	repo.modeConfigs["u1/scalp"] = &settings.ModeConfig{ModeName: "scalp", Enabled: true}

	mr.SetError("down")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.client.Get(ctx, "probe")
	}
	mr.SetError("")

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/scalp/groups/risk", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUpdateModeGroup_Endpoint(t *testing.T) {
	s, repo, _ := setupTestServer(t)

	repo.modeConfigs["u1/scalp"] = &settings.ModeConfig{
		ModeName: "scalp",
		Risk:     &settings.RiskConfig{RiskLevel: "moderate"},
	}

	w := doRequest(t, s, http.MethodPut,
		"/api/v1/users/u1/modes/scalp/groups/risk",
		`{"risk_level":"aggressive"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "aggressive", repo.modeConfigs["u1/scalp"].Risk.RiskLevel)

	// Read-back is served from the refreshed cache.
	w = doRequest(t, s, http.MethodGet, "/api/v1/users/u1/modes/scalp/groups/risk", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"risk_level":"aggressive"}`, w.Body.String())
}

func TestUpdateModeGroup_RejectsInvalidBody(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodPut,
		"/api/v1/users/u1/modes/scalp/groups/risk", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGlobalTradingEndpoints(t *testing.T) {
	s, _, _ := setupTestServer(t)

	// New user resolves to defaults.
	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/settings/global-trading", "")
	require.Equal(t, http.StatusOK, w.Code)

	var gt settings.GlobalTrading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gt))
	assert.Equal(t, "moderate", gt.RiskLevel)

	// Update writes through and reads back.
	w = doRequest(t, s, http.MethodPut, "/api/v1/users/u1/settings/global-trading",
		`{"risk_level":"aggressive","max_usd_allocation":5000,"timezone":"UTC"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/v1/users/u1/settings/global-trading", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gt))
	assert.Equal(t, float64(5000), gt.MaxUSDAllocation)
}

func TestSequenceEndpoints(t *testing.T) {
	s, _, _ := setupTestServer(t)

	for want := 1; want <= 3; want++ {
		w := doRequest(t, s, http.MethodPost, "/api/v1/users/u1/sequence/20260823", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]int64
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, int64(want), body["sequence"])
	}

	w := doRequest(t, s, http.MethodGet, "/api/v1/users/u1/sequence/20260823", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body["sequence"])
}

func TestRequestIDHeader(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "test-id-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "test-id-123", rec.Header().Get("X-Request-ID"))
}
