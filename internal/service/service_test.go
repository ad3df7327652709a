package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"family-shield/internal/access"
	"family-shield/internal/clock"
	"family-shield/internal/config"
	"family-shield/internal/delivery"
	"family-shield/internal/detection"
	"family-shield/internal/events"
	"family-shield/internal/metrics"
	"family-shield/internal/models"
	"family-shield/internal/notifier"
	"family-shield/internal/report"
	"family-shield/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type okSender struct {
	mu   sync.Mutex
	sent []delivery.Message
}

func (s *okSender) Send(_ context.Context, msg delivery.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store   *repository.MemoryStore
	clock   *clock.Fake
	email   *okSender
	events  *recordingPublisher
	metrics *metrics.Metrics
	svc     *EmergencyService
}

func newHarness(t *testing.T, store repository.Store) *harness {
	t.Helper()
	mem, _ := store.(*repository.MemoryStore)
	h := &harness{
		store:   mem,
		clock:   clock.NewFake(testNow),
		email:   &okSender{},
		events:  &recordingPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	logger := zap.NewNop()
	engine := detection.NewEngine(store, h.clock, detection.Config{
		TokenTTL: 72 * time.Hour, HealthCheckMissThreshold: 3, InactivityWarningDays: 30,
	}, nil, logger)
	manager := notifier.NewManager(store, notifier.Channels{Email: h.email}, h.clock,
		notifier.Options{BaseURL: "https://shield.example.com", ConsensusMode: config.ConsensusQuorum}, logger)
	resolver := access.NewResolver(store, h.clock, logger)
	h.svc = NewEmergencyService(store, engine, manager, resolver, h.events, h.metrics, h.clock, logger)
	return h
}

func setup(t *testing.T) *harness {
	return newHarness(t, repository.NewMemoryStore())
}

// enabledUser a user whose shield was armed createdAgo before testNow
func (h *harness) enabledUser(userID string, createdAgo time.Duration, required int) {
	h.store.PutShieldSettings(models.ShieldSettings{
		UserID: userID, InactivityPeriodMonths: 6, RequiredGuardiansForActivation: required,
		IsShieldEnabled: true, ShieldStatus: models.ShieldArmed,
		CreatedAt: testNow.Add(-createdAgo), UpdatedAt: testNow.Add(-createdAgo),
	})
	h.store.PutProfile(models.Profile{UserID: userID, FullName: "Ann Smith", Email: "ann@example.com"})
}

func (h *harness) guardian(id, userID string, mutate ...func(*models.Guardian)) models.Guardian {
	g := models.Guardian{ID: id, UserID: userID, Name: "Guardian " + id, Email: id + "@example.com", IsActive: true, EmergencyContactPriority: 1}
	for _, fn := range mutate {
		fn(&g)
	}
	h.store.PutGuardian(g)
	return g
}

func (h *harness) manualTrigger(t *testing.T, userID, guardianID string) *models.EmergencyActivation {
	t.Helper()
	res, err := h.svc.ManualTrigger(context.Background(), detection.TriggerRequest{
		UserID: userID, TriggerType: models.TriggerManualGuardian, GuardianID: &guardianID,
	})
	require.NoError(t, err)
	return res.Activation
}

const sevenMonths = 213 * 24 * time.Hour

// ============================================
// initialization
// ============================================

func TestInitializeForUser_Idempotent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	first, err := h.svc.InitializeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Settings.IsShieldEnabled)
	assert.Equal(t, models.ShieldInactive, first.Settings.ShieldStatus)
	assert.Equal(t, 6, first.Settings.InactivityPeriodMonths)
	assert.Equal(t, 1, first.Settings.RequiredGuardiansForActivation)

	second, err := h.svc.InitializeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Settings.ID, second.Settings.ID)

	count, err := h.store.CountEnabledShields(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	rules, err := h.store.ListDetectionRules(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rules, 4)

	_, err = h.svc.InitializeForUser(ctx, "")
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))
}

// ============================================
// monitoring
// ============================================

func TestMonitorUserActivity_DisabledShieldNeverTriggers(t *testing.T) {
	h := setup(t)
	h.store.PutShieldSettings(models.ShieldSettings{
		UserID: "u1", InactivityPeriodMonths: 6, RequiredGuardiansForActivation: 1,
		IsShieldEnabled: false, ShieldStatus: models.ShieldInactive,
		CreatedAt: testNow.Add(-3 * sevenMonths),
	})

	res := h.svc.MonitorUserActivity(context.Background(), "u1")
	require.NotNil(t, res.Evaluation)
	assert.False(t, res.Evaluation.ShouldTrigger)
	assert.False(t, res.Triggered)
	assert.Nil(t, res.Activation)
	assert.Empty(t, res.Errors)
	assert.Empty(t, h.events.types())
}

func TestMonitorUserActivity_InactivityTriggers(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", sevenMonths, 1)

	res := h.svc.MonitorUserActivity(ctx, "u1")
	require.Empty(t, res.Errors)
	require.NotNil(t, res.Evaluation)
	assert.True(t, res.Evaluation.ShouldTrigger)
	require.NotNil(t, res.Evaluation.TriggerType)
	assert.Equal(t, models.TriggerInactivityDetected, *res.Evaluation.TriggerType)
	assert.Contains(t, []models.Severity{models.SeverityHigh, models.SeverityCritical}, res.Evaluation.Severity)
	assert.True(t, res.ShouldAlert)

	require.True(t, res.Triggered)
	require.NotNil(t, res.Activation)
	assert.Equal(t, models.ActivationPending, res.Activation.Status)
	require.NotNil(t, res.Activation.Notes)
	assert.Contains(t, *res.Activation.Notes, "Automatic trigger: ")
	assert.Equal(t, 0, res.Notifications.Sent)
	assert.Equal(t, []events.Type{events.ActivationCreated}, h.events.types())

	settings, _ := h.store.GetShieldSettings(ctx, "u1")
	assert.Equal(t, models.ShieldPendingVerification, settings.ShieldStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MonitorPasses.WithLabelValues("triggered")))

	// the live pending activation suppresses a second trigger
	again := h.svc.MonitorUserActivity(ctx, "u1")
	assert.False(t, again.Triggered)
	assert.False(t, again.Evaluation.ShouldTrigger)
	n, _ := h.store.CountActivationsByStatus(ctx, models.ActivationPending)
	assert.Equal(t, 1, n)
}

func TestMonitorUserActivity_NotifiesGuardians(t *testing.T) {
	h := setup(t)
	h.enabledUser("u1", sevenMonths, 1)
	h.guardian("g1", "u1")
	h.guardian("g2", "u1")
	h.guardian("inactive", "u1", func(g *models.Guardian) { g.IsActive = false })

	res := h.svc.MonitorUserActivity(context.Background(), "u1")
	require.True(t, res.Triggered)
	assert.Equal(t, 2, res.Notifications.Sent)
	assert.Len(t, h.email.sent, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("activation_request", "sent")))
}

func TestMonitorUserActivity_UnknownUserEmbedsError(t *testing.T) {
	h := setup(t)
	res := h.svc.MonitorUserActivity(context.Background(), "ghost")
	assert.False(t, res.Triggered)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Activity check failed")
}

// ============================================
// triggers and responses
// ============================================

func TestManualTrigger_DuplicatePending(t *testing.T) {
	h := setup(t)
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })

	h.manualTrigger(t, "u1", "g1")
	g := "g1"
	_, err := h.svc.ManualTrigger(context.Background(), detection.TriggerRequest{
		UserID: "u1", TriggerType: models.TriggerManualGuardian, GuardianID: &g,
	})
	assert.True(t, errors.Is(err, models.ErrActivationAlreadyPending))
}

func TestProcessGuardianResponse_ConfirmPublishesAndIsMonotonic(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	h.guardian("g2", "u1")
	a := h.manualTrigger(t, "u1", "g1")

	res, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, res.Finalized)
	assert.Equal(t, models.ActivationConfirmed, res.Status)
	assert.Equal(t, []events.Type{events.ActivationCreated, events.ActivationConfirmed}, h.events.types())

	// repeat answer reads as already recorded
	dup, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationRejected, nil)
	require.NoError(t, err)
	assert.True(t, dup.AlreadyRecorded)
	assert.Equal(t, models.ActivationConfirmed, dup.Status)

	// a late rejection cannot move a confirmed activation
	_, err = h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g2", models.ActivationRejected, nil)
	assert.True(t, errors.Is(err, models.ErrActivationNotPending))

	h.clock.Advance(100 * time.Hour)
	h.svc.CleanupExpiredData(ctx)
	got, _ := h.store.GetActivation(ctx, a.ID)
	assert.Equal(t, models.ActivationConfirmed, got.Status)

	settings, _ := h.store.GetShieldSettings(ctx, "u1")
	assert.Equal(t, models.ShieldActivated, settings.ShieldStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActivationsFinalized.WithLabelValues("confirmed")))
}

func TestSendReminderNotifications_OnlySilentGuardian(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 2)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	h.guardian("g2", "u1")
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	res := h.svc.SendReminderNotifications(ctx, a.ID, models.ReminderFirst)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.NotificationsSent)
}

// ============================================
// dashboard
// ============================================

func TestGetEmergencyDashboard_PermissionsRoundTrip(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	rel := "sister"
	g := h.guardian("g1", "u1", func(g *models.Guardian) {
		g.CanTriggerEmergency = true
		g.CanAccessHealthDocs = true
		g.IsWillExecutor = true
		g.EmergencyContactPriority = 2
		g.Relationship = &rel
	})
	h.store.PutDocument(models.Document{ID: "d-bank", UserID: "u1", Category: "financial", IsImportant: true})
	h.store.PutDocument(models.Document{ID: "d-med", UserID: "u1", Category: "health"})
	a := h.manualTrigger(t, "u1", "g1")

	d, err := h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "")
	require.NoError(t, err)
	assert.Equal(t, g.Permissions(), d.AccessPermissions)
	assert.Equal(t, "g1", d.Guardian.ID)
	assert.Equal(t, "Ann Smith", d.UserInfo.Name)
	assert.Equal(t, models.ShieldPendingVerification, d.UserInfo.ShieldStatus)
	require.NotNil(t, d.UserInfo.LastActivity)
	assert.Equal(t, int64(72*3600), d.ExpiresInSeconds)

	require.Len(t, d.Resources.Documents, 1)
	assert.Equal(t, "d-med", d.Resources.Documents[0].ID)

	// the financial document stays hidden after confirmation as well
	_, err = h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)
	d, err = h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "g1")
	require.NoError(t, err)
	for _, doc := range d.Resources.Documents {
		assert.NotEqual(t, "d-bank", doc.ID)
	}
}

func TestGetEmergencyDashboard_ExpiredToken(t *testing.T) {
	h := setup(t)
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u1", "g1")

	h.clock.Advance(73 * time.Hour)
	_, err := h.svc.GetEmergencyDashboard(context.Background(), a.VerificationToken, "g1")
	assert.True(t, errors.Is(err, models.ErrTokenExpired))
}

func TestGetEmergencyDashboard_RejectedActivationIsClosed(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) {
		g.CanTriggerEmergency = true
		g.CanAccessFinancialDocs = true
	})
	h.store.PutDocument(models.Document{ID: "d-bank", UserID: "u1", FileName: "bank.pdf", Category: "financial"})
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationRejected, nil)
	require.NoError(t, err)

	d, err := h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "g1")
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, models.ErrInvalidToken))

	h.clock.Advance(365 * 24 * time.Hour)
	d, err = h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "g1")
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, models.ErrInvalidToken))
}

func TestGetEmergencyDashboard_ConfirmedPastWindowIsExpired(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)
	_, err = h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "g1")
	require.NoError(t, err)

	h.clock.Advance(73 * time.Hour)
	d, err := h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "g1")
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, models.ErrTokenExpired))
}

func TestGetEmergencyDashboard_Errors(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	h.guardian("other", "u2")
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.GetEmergencyDashboard(ctx, "nope", "g1")
	assert.True(t, errors.Is(err, models.ErrInvalidToken))

	_, err = h.svc.GetEmergencyDashboard(ctx, a.VerificationToken, "other")
	assert.True(t, errors.Is(err, models.ErrPermissionDenied))
}

func TestGetEmergencyDashboard_UnknownUserName(t *testing.T) {
	h := setup(t)
	h.store.PutShieldSettings(models.ShieldSettings{UserID: "u9", InactivityPeriodMonths: 6, RequiredGuardiansForActivation: 1, IsShieldEnabled: true, CreatedAt: testNow})
	h.guardian("g9", "u9", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u9", "g9")

	d, err := h.svc.GetEmergencyDashboard(context.Background(), a.VerificationToken, "g9")
	require.NoError(t, err)
	assert.Equal(t, "Unknown User", d.UserInfo.Name)
}

// ============================================
// survivor interface
// ============================================

func TestGetSurvivorInterface_Public(t *testing.T) {
	h := setup(t)
	memorial := "Thank you for everything."
	h.store.PutProfile(models.Profile{UserID: "u1", FullName: "Ann Smith", MemorialMessage: &memorial})
	h.store.PutDocument(models.Document{ID: "d-photo", UserID: "u1", FileName: "photo.jpg", Category: "personal", IsPublic: true})
	h.store.PutDocument(models.Document{ID: "d-will", UserID: "u1", FileName: "will.pdf", Category: "legal"})
	h.store.PutDocument(models.Document{ID: "d-ins", UserID: "u1", FileName: "policy.pdf", Category: "insurance", IsPublic: true})
	h.store.PutEmergencyContact(models.EmergencyContact{ID: "c-pub", UserID: "u1", Name: "Funeral home", IsPublic: true})
	h.store.PutEmergencyContact(models.EmergencyContact{ID: "c-priv", UserID: "u1", Name: "Doctor"})

	v, err := h.svc.GetSurvivorInterface(context.Background(), "u1", true)
	require.NoError(t, err)
	require.NotNil(t, v.MemorialMessage)
	assert.Equal(t, memorial, *v.MemorialMessage)
	assert.Equal(t, AccessLevelPublic, v.AccessLevel)

	var ids []string
	for _, r := range v.AvailableResources {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"d-photo", "c-pub"}, ids)
	for _, r := range v.AvailableResources {
		if r.ResourceType == "document" {
			assert.Equal(t, "personal", r.Category)
		}
	}

	_, err = h.svc.GetSurvivorInterface(context.Background(), "missing-user", true)
	assert.True(t, errors.Is(err, models.ErrInvalidToken))
}

func TestGetSurvivorInterface_RequiresConfirmedActivation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	h.store.PutDocument(models.Document{ID: "d-will", UserID: "u1", Category: "legal"})
	h.store.PutDocument(models.Document{ID: "d-bank", UserID: "u1", Category: "bank"})
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.GetSurvivorInterface(ctx, a.VerificationToken, false)
	assert.True(t, errors.Is(err, models.ErrInvalidToken))

	_, err = h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)

	v, err := h.svc.GetSurvivorInterface(ctx, a.VerificationToken, false)
	require.NoError(t, err)
	assert.Equal(t, AccessLevelFamilyMember, v.AccessLevel)
	require.Len(t, v.Resources.Documents, 1)
	assert.Equal(t, "d-will", v.Resources.Documents[0].ID)
}

func TestGetSurvivorInterface_HidesCapsulesAddressedToGuardians(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	g1 := "g1"
	h.store.PutTimeCapsule(models.TimeCapsule{ID: "tc-g1", UserID: "u1", Title: "for g1", RecipientGuardianID: &g1, DeliveryCondition: models.CapsuleOnActivation})
	h.store.PutTimeCapsule(models.TimeCapsule{ID: "tc-family", UserID: "u1", Title: "for everyone", DeliveryCondition: models.CapsuleOnActivation})
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)

	v, err := h.svc.GetSurvivorInterface(ctx, a.VerificationToken, false)
	require.NoError(t, err)
	require.Len(t, v.Resources.TimeCapsules, 1)
	assert.Equal(t, "tc-family", v.Resources.TimeCapsules[0].ID)
}

// ============================================
// maintenance
// ============================================

func TestCleanupExpiredData_ExpiresLapsedTokens(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u1", "g1")

	h.clock.Advance(72 * time.Hour)
	res := h.svc.CleanupExpiredData(ctx)
	assert.Empty(t, res.Errors)
	// one expired activation plus its unanswered notification
	assert.Equal(t, 2, res.Cleaned)

	got, _ := h.store.GetActivation(ctx, a.ID)
	assert.Equal(t, models.ActivationExpired, got.Status)
	settings, _ := h.store.GetShieldSettings(ctx, "u1")
	assert.Equal(t, models.ShieldArmed, settings.ShieldStatus)

	// the user can be triggered again
	h.manualTrigger(t, "u1", "g1")
}

type brokenStore struct {
	*repository.MemoryStore
}

var errStoreDown = errors.New("connection refused")

func (brokenStore) ExpireOldActivationTokens(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func (brokenStore) CleanupExpiredEmergencyData(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func (brokenStore) CountEnabledShields(context.Context) (int, error) {
	return 0, errStoreDown
}

func (brokenStore) CountActivationsByStatus(context.Context, models.ActivationStatus) (int, error) {
	return 0, errStoreDown
}

// failOnceStore fails the first activation status change
type failOnceStore struct {
	*repository.MemoryStore
	failed bool
}

func (s *failOnceStore) TransitionActivation(ctx context.Context, id string, to models.ActivationStatus, at time.Time, notes *string) error {
	if !s.failed {
		s.failed = true
		return errStoreDown
	}
	return s.MemoryStore.TransitionActivation(ctx, id, to, at, notes)
}

func TestProcessGuardianResponse_RetryFinalizesAfterStoreFailure(t *testing.T) {
	mem := repository.NewMemoryStore()
	h := newHarness(t, &failOnceStore{MemoryStore: mem})
	h.store = mem
	ctx := context.Background()
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u1", "g1")

	_, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.Error(t, err)

	res, err := h.svc.ProcessGuardianResponse(ctx, a.VerificationToken, "g1", models.ActivationConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRecorded)
	assert.True(t, res.Finalized)
	assert.Equal(t, models.ActivationConfirmed, res.Status)
	assert.Equal(t, []events.Type{events.ActivationCreated, events.ActivationConfirmed}, h.events.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActivationsFinalized.WithLabelValues("confirmed")))
}

func TestCleanupExpiredData_AggregatesErrors(t *testing.T) {
	h := newHarness(t, brokenStore{repository.NewMemoryStore()})
	res := h.svc.CleanupExpiredData(context.Background())
	assert.Equal(t, 0, res.Cleaned)
	assert.Equal(t, []string{
		"Token cleanup failed: connection refused",
		"Data cleanup failed: connection refused",
	}, res.Errors)
}

func TestGetSystemStatus(t *testing.T) {
	h := setup(t)
	h.enabledUser("u1", time.Hour, 1)
	h.enabledUser("u2", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	h.manualTrigger(t, "u1", "g1")

	st := h.svc.GetSystemStatus(context.Background())
	assert.True(t, st.IsHealthy)
	assert.Empty(t, st.Errors)
	assert.Equal(t, 2, st.ActiveShields)
	assert.Equal(t, 1, st.PendingActivations)
	assert.Equal(t, 0, st.PendingNotifications)

	broken := newHarness(t, brokenStore{repository.NewMemoryStore()})
	st = broken.svc.GetSystemStatus(context.Background())
	assert.False(t, st.IsHealthy)
	assert.Len(t, st.Errors, 2)
}

func TestExportActivations(t *testing.T) {
	h := setup(t)
	h.enabledUser("u1", time.Hour, 1)
	h.guardian("g1", "u1", func(g *models.Guardian) { g.CanTriggerEmergency = true })
	a := h.manualTrigger(t, "u1", "g1")

	data, err := h.svc.ExportActivations(context.Background(), "u1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.ActivationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, a.ID, rows[1][0])

	rows, err = f.GetRows(report.NotificationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
