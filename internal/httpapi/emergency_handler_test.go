package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"family-shield/internal/access"
	"family-shield/internal/clock"
	"family-shield/internal/config"
	"family-shield/internal/delivery"
	"family-shield/internal/detection"
	"family-shield/internal/metrics"
	"family-shield/internal/models"
	"family-shield/internal/notifier"
	"family-shield/internal/report"
	"family-shield/internal/repository"
	"family-shield/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type nopSender struct{}

func (nopSender) Send(context.Context, delivery.Message) error { return nil }

type fixture struct {
	store  *repository.MemoryStore
	clock  *clock.Fake
	server *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: repository.NewMemoryStore(), clock: clock.NewFake(testNow)}
	logger := zap.NewNop()

	engine := detection.NewEngine(f.store, f.clock, detection.Config{
		TokenTTL: 72 * time.Hour, HealthCheckMissThreshold: 3, InactivityWarningDays: 30,
	}, nil, logger)
	manager := notifier.NewManager(f.store, notifier.Channels{Email: nopSender{}}, f.clock,
		notifier.Options{BaseURL: "https://shield.example.com", ConsensusMode: config.ConsensusQuorum}, logger)
	resolver := access.NewResolver(f.store, f.clock, logger)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := service.NewEmergencyService(f.store, engine, manager, resolver, nil, m, f.clock, logger)

	f.server = httptest.NewServer(NewRouter(NewEmergencyHandler(svc, logger), m, reg))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) armedUser(userID string, enabled bool) {
	status := models.ShieldArmed
	if !enabled {
		status = models.ShieldInactive
	}
	f.store.PutShieldSettings(models.ShieldSettings{
		UserID: userID, InactivityPeriodMonths: 6, RequiredGuardiansForActivation: 1,
		IsShieldEnabled: enabled, ShieldStatus: status,
		CreatedAt: testNow.Add(-24 * time.Hour), UpdatedAt: testNow.Add(-24 * time.Hour),
	})
	f.store.PutProfile(models.Profile{UserID: userID, FullName: "Ann Smith", Email: "ann@example.com"})
	f.store.PutGuardian(models.Guardian{
		ID: "g1", UserID: userID, Name: "Bob", Email: "bob@example.com",
		IsActive: true, CanTriggerEmergency: true, EmergencyContactPriority: 1,
	})
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResult[T any](t *testing.T, resp *http.Response) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// trigger opens a manual activation for u1 by g1 and returns its token
func (f *fixture) trigger(t *testing.T) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/users/u1/activations", map[string]any{
		"trigger_type": "manual_guardian", "guardian_id": "g1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decodeResult[service.TriggerResult](t, resp)
	require.Equal(t, ResultSuccess, res.Code)
	require.NotNil(t, res.Result.Activation)
	assert.Equal(t, 1, res.Result.Notifications.Sent)
	return res.Result.Activation.VerificationToken
}

// ============================================
// tests
// ============================================

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.do(t, http.MethodGet, "/admin/api/v1/status", nil)
	resp = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `http_requests_total{handler="system_status",method="GET",status="200"}`)
}

func TestInitialize_CreatedThenOK(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/v1/users/u9/shield", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeResult[service.InitializeResult](t, resp)
	assert.True(t, first.Result.Created)

	resp = f.do(t, http.MethodPost, "/api/v1/users/u9/shield", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeResult[service.InitializeResult](t, resp)
	assert.False(t, second.Result.Created)
	assert.Equal(t, first.Result.Settings.ID, second.Result.Settings.ID)
}

func TestVerificationFlow_ConfirmUnlocksSurvivorView(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	token := f.trigger(t)

	resp := f.do(t, http.MethodGet, "/emergency/verify/"+token+"?guardian_id=g1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decodeResult[service.Dashboard](t, resp)
	assert.Equal(t, "Ann Smith", dash.Result.UserInfo.Name)
	assert.Equal(t, "g1", dash.Result.Guardian.ID)

	// not confirmed yet
	resp = f.do(t, http.MethodGet, "/survivor/"+token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/emergency/verify/"+token, map[string]any{
		"guardian_id": "g1", "response": "confirmed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult[service.ResponseResult](t, resp)
	assert.True(t, out.Result.Finalized)
	assert.Equal(t, models.ActivationConfirmed, out.Result.Status)

	resp = f.do(t, http.MethodPost, "/emergency/verify/"+token, map[string]any{
		"guardian_id": "g1", "response": "rejected",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeResult[service.ResponseResult](t, resp)
	assert.True(t, again.Result.AlreadyRecorded)
	assert.Equal(t, models.ActivationConfirmed, again.Result.Status)

	resp = f.do(t, http.MethodGet, "/survivor/"+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeResult[service.SurvivorView](t, resp)
	assert.Equal(t, service.AccessLevelFamilyMember, view.Result.AccessLevel)
}

func TestDashboard_ExpiredTokenIsGone(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	token := f.trigger(t)

	f.clock.Advance(73 * time.Hour)
	resp := f.do(t, http.MethodGet, "/emergency/verify/"+token, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	res := decodeResult[any](t, resp)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, "request expired", res.Message)
}

func TestRespond_Validation(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	token := f.trigger(t)

	resp := f.do(t, http.MethodPost, "/emergency/verify/"+token, map[string]any{"guardian_id": "g1", "response": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/emergency/verify/"+token, map[string]any{"response": "confirmed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/emergency/verify/unknown-token", map[string]any{"guardian_id": "g1", "response": "confirmed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRespond_OversizedBody(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	token := f.trigger(t)

	notes := strings.Repeat("x", maxBodyBytes)
	resp := f.do(t, http.MethodPost, "/emergency/verify/"+token,
		map[string]any{"guardian_id": "g1", "response": "confirmed", "notes": notes})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	out := decodeResult[any](t, resp)
	assert.Contains(t, out.Message, "64 KiB")

	// nothing was recorded, a normal answer still goes through
	resp = f.do(t, http.MethodPost, "/emergency/verify/"+token, map[string]any{"guardian_id": "g1", "response": "confirmed"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadBodyJSON_Limit(t *testing.T) {
	var out map[string]string

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"b"}`))
	require.NoError(t, readBodyJSON(req, 9, &out))
	assert.Equal(t, "b", out["a"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"bc"}`))
	assert.ErrorIs(t, readBodyJSON(req, 9, &out), errBodyTooLarge)
}

func TestTrigger_Conflicts(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", false)

	resp := f.do(t, http.MethodPost, "/api/v1/users/u1/activations", map[string]any{
		"trigger_type": "manual_guardian", "guardian_id": "g1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// guardian_id is required for guardian triggers
	resp = f.do(t, http.MethodPost, "/api/v1/users/u1/activations", map[string]any{"trigger_type": "manual_guardian"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/users/u1/activations", map[string]any{"trigger_type": "admin_override"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/users/u1/activations", map[string]any{"trigger_type": "admin_override"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExportActivations(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	f.trigger(t)

	resp := f.do(t, http.MethodGet, "/api/v1/users/u1/activations/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, report.ContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=activations-u1.xlsx", resp.Header.Get("Content-Disposition"))
}

func TestMarkRead(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)
	token := f.trigger(t)

	rows, err := f.store.ListNotificationsByToken(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	path := fmt.Sprintf("/api/v1/notifications/%s/read", rows[0].ID)

	resp := f.do(t, http.MethodPost, path, map[string]any{"guardian_id": "someone-else"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, path, map[string]any{"guardian_id": "g1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthCheckAndReminders(t *testing.T) {
	f := setup(t)
	f.armedUser("u1", true)

	resp := f.do(t, http.MethodPost, "/api/v1/users/u1/health-checks", map[string]any{"check_type": "login", "responded": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/v1/users/u1/health-checks", map[string]any{"check_type": "login"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.trigger(t)
	resp = f.do(t, http.MethodGet, "/api/v1/users/u1/shield", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeResult[detection.ActivationStatus](t, resp)
	require.NotNil(t, status.Result.Latest)

	resp = f.do(t, http.MethodPost, "/api/v1/activations/"+status.Result.Latest.ID+"/reminders",
		map[string]any{"reminder_type": "urgent_reminder"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rem := decodeResult[notifier.ReminderResult](t, resp)
	assert.True(t, rem.Result.Success)
	assert.Equal(t, 1, rem.Result.NotificationsSent)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{models.ErrTokenExpired, http.StatusGone},
		{errBodyTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("wrap: %w", models.ErrInvalidToken), http.StatusNotFound},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrInvalidArgument, http.StatusBadRequest},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrActivationNotPending, http.StatusConflict},
		{models.ErrActivationAlreadyPending, http.StatusConflict},
		{models.ErrShieldDisabled, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, msg := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		if status == http.StatusInternalServerError {
			assert.False(t, strings.Contains(msg, "boom"))
		}
	}
}
