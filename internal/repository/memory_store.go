package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"family-shield/internal/models"
	"github.com/google/uuid"
)

// MemoryStore in-process Store for DB_ENABLED=false and tests.
// - all maps guarded by one RWMutex, so the pending guard and CAS transitions are atomic
// - values are copied on the way in and out
// - Put* seed helpers stand in for the CRUD owned by other services
type MemoryStore struct {
	mu sync.RWMutex

	settings      map[string]models.ShieldSettings       // userID -> settings
	rules         map[string][]models.DetectionRule      // userID -> rules
	activations   map[string]models.EmergencyActivation  // activationID -> row
	guardians     map[string]models.Guardian             // guardianID -> row
	notifications map[string]models.GuardianNotification // notificationID -> row
	responses     map[string][]models.GuardianResponse   // activationID -> rows
	healthChecks  map[string][]models.HealthCheck        // userID -> rows
	profiles      map[string]models.Profile              // userID -> row
	documents     map[string][]models.Document           // userID -> rows
	contacts      map[string][]models.EmergencyContact   // userID -> rows
	capsules      map[string][]models.TimeCapsule        // userID -> rows
	guidance      map[string][]models.GuidanceEntry      // userID -> rows
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:      map[string]models.ShieldSettings{},
		rules:         map[string][]models.DetectionRule{},
		activations:   map[string]models.EmergencyActivation{},
		guardians:     map[string]models.Guardian{},
		notifications: map[string]models.GuardianNotification{},
		responses:     map[string][]models.GuardianResponse{},
		healthChecks:  map[string][]models.HealthCheck{},
		profiles:      map[string]models.Profile{},
		documents:     map[string][]models.Document{},
		contacts:      map[string][]models.EmergencyContact{},
		capsules:      map[string][]models.TimeCapsule{},
		guidance:      map[string][]models.GuidanceEntry{},
	}
}

var _ Store = (*MemoryStore)(nil)

// ---- seed helpers ----

func (m *MemoryStore) PutShieldSettings(s models.ShieldSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.settings[s.UserID] = s
}

func (m *MemoryStore) PutGuardian(g models.Guardian) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	m.guardians[g.ID] = g
}

func (m *MemoryStore) PutProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

func (m *MemoryStore) PutDocument(d models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	m.documents[d.UserID] = append(m.documents[d.UserID], d)
}

func (m *MemoryStore) PutEmergencyContact(c models.EmergencyContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.contacts[c.UserID] = append(m.contacts[c.UserID], c)
}

func (m *MemoryStore) PutTimeCapsule(c models.TimeCapsule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.capsules[c.UserID] = append(m.capsules[c.UserID], c)
}

func (m *MemoryStore) PutGuidanceEntry(g models.GuidanceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	m.guidance[g.UserID] = append(m.guidance[g.UserID], g)
}

// ---- settings ----

func (m *MemoryStore) GetShieldSettings(_ context.Context, userID string) (*models.ShieldSettings, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[userID]
	if !ok {
		return nil, fmt.Errorf("shield settings not found: user_id=%s: %w", userID, models.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) CreateShieldSettings(_ context.Context, settings *models.ShieldSettings) error {
	if settings == nil || settings.UserID == "" {
		return fmt.Errorf("settings.user_id is required: %w", models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[settings.UserID]; ok {
		return fmt.Errorf("shield settings for user_id=%s: %w", settings.UserID, models.ErrAlreadyExists)
	}
	if settings.ID == "" {
		settings.ID = uuid.New().String()
	}
	m.settings[settings.UserID] = *settings
	return nil
}

func (m *MemoryStore) UpdateShieldStatus(_ context.Context, userID string, status models.ShieldStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[userID]
	if !ok {
		return fmt.Errorf("shield settings not found: user_id=%s: %w", userID, models.ErrNotFound)
	}
	s.ShieldStatus = status
	s.UpdatedAt = at
	m.settings[userID] = s
	return nil
}

func (m *MemoryStore) ListEnabledShieldUsers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []string
	for userID, s := range m.settings {
		if s.IsShieldEnabled {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *MemoryStore) CountEnabledShields(ctx context.Context) (int, error) {
	users, _ := m.ListEnabledShieldUsers(ctx)
	return len(users), nil
}

// ---- detection rules ----

func (m *MemoryStore) InitializeDefaultRules(_ context.Context, userID string, rules []models.DetectionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := map[string]bool{}
	for _, r := range m.rules[userID] {
		existing[r.RuleType] = true
	}
	for _, r := range rules {
		if existing[r.RuleType] {
			continue
		}
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.UserID = userID
		m.rules[userID] = append(m.rules[userID], r)
		existing[r.RuleType] = true
	}
	return nil
}

func (m *MemoryStore) ListDetectionRules(_ context.Context, userID string) ([]models.DetectionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.DetectionRule(nil), m.rules[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RuleType < out[j].RuleType })
	return out, nil
}

// ---- activations ----

func (m *MemoryStore) CreateActivation(_ context.Context, a *models.EmergencyActivation) error {
	if a == nil || a.UserID == "" || a.VerificationToken == "" {
		return fmt.Errorf("activation user_id and verification_token are required: %w", models.ErrInvalidArgument)
	}
	if !a.TokenExpiresAt.After(a.CreatedAt) {
		return fmt.Errorf("token_expires_at must be after created_at: %w", models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.activations {
		if existing.VerificationToken == a.VerificationToken {
			return fmt.Errorf("duplicate verification token: %w", models.ErrAlreadyExists)
		}
		if existing.UserID == a.UserID && existing.Status == models.ActivationPending && a.Status == models.ActivationPending {
			return fmt.Errorf("user_id=%s: %w", a.UserID, models.ErrActivationAlreadyPending)
		}
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	m.activations[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetActivation(_ context.Context, activationID string) (*models.EmergencyActivation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activations[activationID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) GetActivationByToken(_ context.Context, token string) (*models.EmergencyActivation, error) {
	if token == "" {
		return nil, models.ErrInvalidToken
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.activations {
		if a.VerificationToken == token {
			a := a
			return &a, nil
		}
	}
	return nil, models.ErrInvalidToken
}

func (m *MemoryStore) GetPendingActivation(_ context.Context, userID string) (*models.EmergencyActivation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.activations {
		if a.UserID == userID && a.Status == models.ActivationPending {
			a := a
			return &a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryStore) filterActivations(keep func(models.EmergencyActivation) bool, newestFirst bool) []*models.EmergencyActivation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.EmergencyActivation
	for _, a := range m.activations {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) ListActivations(_ context.Context, userID string) ([]*models.EmergencyActivation, error) {
	return m.filterActivations(func(a models.EmergencyActivation) bool { return a.UserID == userID }, true), nil
}

func (m *MemoryStore) ListPendingActivations(_ context.Context) ([]*models.EmergencyActivation, error) {
	return m.filterActivations(func(a models.EmergencyActivation) bool { return a.Status == models.ActivationPending }, false), nil
}

func (m *MemoryStore) TransitionActivation(_ context.Context, activationID string, to models.ActivationStatus, at time.Time, notes *string) error {
	if !to.Terminal() {
		return fmt.Errorf("invalid target status %q: %w", to, models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activations[activationID]
	if !ok || a.Status != models.ActivationPending {
		return fmt.Errorf("activation_id=%s: %w", activationID, models.ErrActivationNotPending)
	}
	a.Status = to
	a.UpdatedAt = at
	if to == models.ActivationConfirmed {
		t := at
		a.ConfirmedAt = &t
	}
	if notes != nil && *notes != "" {
		n := *notes
		a.Notes = &n
	}
	m.activations[activationID] = a
	return nil
}

func (m *MemoryStore) CountActivationsByStatus(_ context.Context, status models.ActivationStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.activations {
		if a.Status == status {
			n++
		}
	}
	return n, nil
}

// ExpireOldActivationTokens mirrors expire_old_activation_tokens(): expired rows
// move to 'expired' and a pending_verification shield is re-armed.
func (m *MemoryStore) ExpireOldActivationTokens(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.activations {
		if a.Status != models.ActivationPending || !a.IsExpiredAt(now) {
			continue
		}
		a.Status = models.ActivationExpired
		a.UpdatedAt = now
		m.activations[id] = a
		n++

		if s, ok := m.settings[a.UserID]; ok && s.ShieldStatus == models.ShieldPendingVerification {
			s.ShieldStatus = models.ShieldInactive
			if s.IsShieldEnabled {
				s.ShieldStatus = models.ShieldArmed
			}
			s.UpdatedAt = now
			m.settings[a.UserID] = s
		}
	}
	return n, nil
}

// ---- guardians / profiles ----

func (m *MemoryStore) GetGuardian(_ context.Context, guardianID string) (*models.Guardian, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guardians[guardianID]
	if !ok {
		return nil, fmt.Errorf("guardian not found: guardian_id=%s: %w", guardianID, models.ErrNotFound)
	}
	return &g, nil
}

func (m *MemoryStore) ListActiveGuardians(_ context.Context, userID string) ([]*models.Guardian, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Guardian
	for _, g := range m.guardians {
		if g.UserID == userID && g.IsActive {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmergencyContactPriority != out[j].EmergencyContactPriority {
			return out[i].EmergencyContactPriority < out[j].EmergencyContactPriority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile not found: user_id=%s: %w", userID, models.ErrNotFound)
	}
	return &p, nil
}

// ---- notifications ----

func (m *MemoryStore) CreateNotification(_ context.Context, n *models.GuardianNotification) error {
	if n == nil || n.GuardianID == "" || n.VerificationToken == "" {
		return fmt.Errorf("notification guardian_id and verification_token are required: %w", models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.DeliveryStatus == "" {
		n.DeliveryStatus = models.DeliveryPending
	}
	m.notifications[n.ID] = *n
	return nil
}

func (m *MemoryStore) UpdateNotificationDelivery(_ context.Context, notificationID string, status models.DeliveryStatus, deliveryErr *string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok {
		return fmt.Errorf("notification_id=%s: %w", notificationID, models.ErrNotFound)
	}
	n.DeliveryStatus = status
	n.DeliveryError = deliveryErr
	if sentAt != nil {
		t := *sentAt
		n.SentAt = &t
	}
	m.notifications[notificationID] = n
	return nil
}

func (m *MemoryStore) ListNotificationsByToken(_ context.Context, token string) ([]*models.GuardianNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.GuardianNotification
	for _, n := range m.notifications {
		if n.VerificationToken == token {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) MarkNotificationsResponded(_ context.Context, token, guardianID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, n := range m.notifications {
		if n.VerificationToken != token || n.GuardianID != guardianID || n.RespondedAt != nil {
			continue
		}
		t := at
		n.RespondedAt = &t
		m.notifications[id] = n
		count++
	}
	return count, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, notificationID, guardianID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok || n.GuardianID != guardianID {
		return fmt.Errorf("notification_id=%s guardian_id=%s: %w", notificationID, guardianID, models.ErrNotFound)
	}
	if n.ReadAt == nil {
		t := at
		n.ReadAt = &t
		m.notifications[notificationID] = n
	}
	return nil
}

func (m *MemoryStore) HasReminder(_ context.Context, token string, reminder models.ReminderType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.notifications {
		if n.VerificationToken == token && n.ReminderType != nil && *n.ReminderType == reminder {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountNotificationsByDeliveryStatus(_ context.Context, status models.DeliveryStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, row := range m.notifications {
		if row.DeliveryStatus == status {
			n++
		}
	}
	return n, nil
}

// CleanupExpiredEmergencyData mirrors cleanup_expired_emergency_data()
func (m *MemoryStore) CleanupExpiredEmergencyData(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := map[string]bool{}
	for _, a := range m.activations {
		if a.Status != models.ActivationPending {
			closed[a.VerificationToken] = true
		}
	}
	n := 0
	for id, row := range m.notifications {
		if row.RespondedAt == nil && !now.Before(row.ExpiresAt) && closed[row.VerificationToken] {
			delete(m.notifications, id)
			n++
		}
	}
	return n, nil
}

// ---- responses ----

func (m *MemoryStore) RecordGuardianResponse(_ context.Context, r *models.GuardianResponse) error {
	if r == nil || r.ActivationID == "" || r.GuardianID == "" {
		return fmt.Errorf("response activation_id and guardian_id are required: %w", models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.responses[r.ActivationID] {
		if existing.GuardianID == r.GuardianID {
			return fmt.Errorf("activation_id=%s guardian_id=%s: %w", r.ActivationID, r.GuardianID, models.ErrAlreadyResponded)
		}
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	m.responses[r.ActivationID] = append(m.responses[r.ActivationID], *r)
	return nil
}

func (m *MemoryStore) ListGuardianResponses(_ context.Context, activationID string) ([]*models.GuardianResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.GuardianResponse
	for _, r := range m.responses[activationID] {
		r := r
		out = append(out, &r)
	}
	return out, nil
}

// ---- health checks ----

func (m *MemoryStore) RecordHealthCheck(_ context.Context, c *models.HealthCheck) error {
	if c == nil || c.UserID == "" || !c.CheckType.Valid() {
		return fmt.Errorf("health check user_id and valid check_type are required: %w", models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.healthChecks[c.UserID] = append(m.healthChecks[c.UserID], *c)
	return nil
}

func (m *MemoryStore) GetActivitySignals(_ context.Context, userID string) (*ActivitySignals, error) {
	m.mu.RLock()
	checks := append([]models.HealthCheck(nil), m.healthChecks[userID]...)
	m.mu.RUnlock()

	signals := &ActivitySignals{LastSeen: map[models.HealthCheckType]time.Time{}}
	var lastResponded time.Time
	for _, c := range checks {
		if !c.Responded {
			signals.TotalMissed++
			continue
		}
		if prev, ok := signals.LastSeen[c.CheckType]; !ok || c.CheckedAt.After(prev) {
			signals.LastSeen[c.CheckType] = c.CheckedAt
		}
		if c.CheckedAt.After(lastResponded) {
			lastResponded = c.CheckedAt
		}
	}
	for _, c := range checks {
		if !c.Responded && c.CheckedAt.After(lastResponded) {
			signals.ConsecutiveMissed++
		}
	}
	return signals, nil
}

// ---- resources ----

func (m *MemoryStore) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Document(nil), m.documents[userID]...), nil
}

func (m *MemoryStore) ListEmergencyContacts(_ context.Context, userID string) ([]models.EmergencyContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.EmergencyContact(nil), m.contacts[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *MemoryStore) ListTimeCapsules(_ context.Context, userID string) ([]models.TimeCapsule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TimeCapsule(nil), m.capsules[userID]...), nil
}

func (m *MemoryStore) ListGuidanceEntries(_ context.Context, userID string) ([]models.GuidanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.GuidanceEntry(nil), m.guidance[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}
