package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-shield/internal/access"
	"family-shield/internal/events"
	"family-shield/internal/models"
	"family-shield/internal/notifier"

	"go.uber.org/zap"
)

// ============================================
// guardian responses
// ============================================

// ResponseResult what processGuardianResponse did.
// AlreadyRecorded is set when the guardian had answered before; the first answer stands.
type ResponseResult struct {
	ActivationID    string                  `json:"activation_id"`
	Response        models.ActivationStatus `json:"response"`
	Status          models.ActivationStatus `json:"status"`
	Finalized       bool                    `json:"finalized"`
	AlreadyRecorded bool                    `json:"already_recorded"`
	Confirmations   int                     `json:"confirmations"`
	Rejections      int                     `json:"rejections"`
	Required        int                     `json:"required"`
}

// ProcessGuardianResponse records a guardian's confirm/reject and publishes the outcome once finalized
func (s *EmergencyService) ProcessGuardianResponse(ctx context.Context, token, guardianID string, response models.ActivationStatus, notes *string) (*ResponseResult, error) {
	outcome, err := s.notifier.RecordGuardianResponse(ctx, token, guardianID, response, notes)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyResponded) {
			result := &ResponseResult{Response: response, AlreadyRecorded: true}
			if a, gerr := s.store.GetActivationByToken(ctx, token); gerr == nil {
				result.ActivationID = a.ID
				result.Status = a.Status
			}
			return result, nil
		}
		s.logger.Warn("Guardian response rejected",
			zap.String("guardian_id", guardianID),
			zap.Error(err),
		)
		return nil, err
	}
	if !outcome.AlreadyRecorded {
		s.metrics.GuardianResponded(string(response))
	}

	if outcome.Finalized {
		s.metrics.ActivationFinalized(string(outcome.Status), 1)
		if typ, ok := events.ForStatus(outcome.Status); ok {
			s.publish(ctx, events.Event{
				Type:         typ,
				ActivationID: outcome.ActivationID,
				UserID:       outcome.UserID,
				GuardianID:   guardianID,
				Status:       outcome.Status,
				OccurredAt:   s.clock.Now(),
			})
		}
	}
	return responseResult(outcome), nil
}

func responseResult(o *notifier.ResponseOutcome) *ResponseResult {
	return &ResponseResult{
		ActivationID:    o.ActivationID,
		Response:        o.Response,
		Status:          o.Status,
		Finalized:       o.Finalized,
		AlreadyRecorded: o.AlreadyRecorded,
		Confirmations:   o.Confirmations,
		Rejections:      o.Rejections,
		Required:        o.Required,
	}
}

// ============================================
// guardian dashboard
// ============================================

// UserInfo the protected user as shown to guardians
type UserInfo struct {
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	LastActivity *time.Time          `json:"last_activity,omitempty"`
	ShieldStatus models.ShieldStatus `json:"shield_status"`
}

// GuardianInfo the guardian the dashboard was built for
type GuardianInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Relationship *string `json:"relationship,omitempty"`
}

// Dashboard read-only summary for a guardian holding a verification token
type Dashboard struct {
	Activation        *models.EmergencyActivation `json:"activation"`
	Guardian          GuardianInfo                `json:"guardian"`
	UserInfo          UserInfo                    `json:"user_info"`
	AccessPermissions models.GuardianPermissions  `json:"access_permissions"`
	Resources         *models.AccessibleResources `json:"resources"`
	ExpiresInSeconds  int64                       `json:"expires_in_seconds"`
}

// GetEmergencyDashboard validates the token, then resolves what the guardian may see.
// The link works only within its window, and never for a rejected activation.
// guardianID may be empty, in which case the guardian who triggered the activation is used.
func (s *EmergencyService) GetEmergencyDashboard(ctx context.Context, token, guardianID string) (*Dashboard, error) {
	activation, err := s.store.GetActivationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if activation.Status == models.ActivationRejected {
		return nil, fmt.Errorf("activation was rejected: %w", models.ErrInvalidToken)
	}
	now := s.clock.Now()
	if activation.Status == models.ActivationExpired || activation.IsExpiredAt(now) {
		return nil, models.ErrTokenExpired
	}

	if guardianID == "" {
		if activation.GuardianID == nil {
			return nil, fmt.Errorf("guardian_id is required: %w", models.ErrInvalidArgument)
		}
		guardianID = *activation.GuardianID
	}
	guardian, err := s.store.GetGuardian(ctx, guardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("guardian %s: %w", guardianID, models.ErrPermissionDenied)
		}
		return nil, err
	}
	if guardian.UserID != activation.UserID || !guardian.IsActive {
		return nil, fmt.Errorf("guardian %s is not a guardian of this user: %w", guardianID, models.ErrPermissionDenied)
	}

	perms := guardian.Permissions()
	resources, err := s.resolver.GetAccessibleResources(ctx, activation.UserID, access.AccessRequest{
		AccessorType: access.AccessorGuardian,
		AccessorID:   guardian.ID,
		AccessToken:  token,
		Permissions:  &perms,
	})
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		Activation:        activation,
		Guardian:          GuardianInfo{ID: guardian.ID, Name: guardian.Name, Relationship: guardian.Relationship},
		UserInfo:          s.userInfo(ctx, activation.UserID),
		AccessPermissions: perms,
		Resources:         resources,
	}
	if left := activation.TokenExpiresAt.Sub(now); left > 0 && activation.Status == models.ActivationPending {
		dashboard.ExpiresInSeconds = int64(left.Seconds())
	}
	return dashboard, nil
}

func (s *EmergencyService) userInfo(ctx context.Context, userID string) UserInfo {
	info := UserInfo{Name: "Unknown User"}
	if p, err := s.store.GetProfile(ctx, userID); err == nil {
		if p.FullName != "" {
			info.Name = p.FullName
		}
		info.Email = p.Email
	}
	if settings, err := s.store.GetShieldSettings(ctx, userID); err == nil {
		info.ShieldStatus = settings.ShieldStatus
	}
	if tracker, err := s.engine.CheckUserActivity(ctx, userID); err == nil {
		last := tracker.LastActivity
		info.LastActivity = &last
	}
	return info
}

// ============================================
// survivor interface
// ============================================

const (
	AccessLevelPublic       = "public"
	AccessLevelFamilyMember = "family_member"
)

// ResourceEntry one flattened resource of the survivor view
type ResourceEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ResourceType string `json:"resource_type"`
	Category     string `json:"category,omitempty"`
}

// SurvivorView what a family member or public visitor sees
type SurvivorView struct {
	UserID             string                      `json:"user_id"`
	Name               string                      `json:"name"`
	AvatarURL          *string                     `json:"avatar_url,omitempty"`
	MemorialMessage    *string                     `json:"memorial_message,omitempty"`
	AccessLevel        string                      `json:"access_level"`
	Resources          *models.AccessibleResources `json:"resources"`
	AvailableResources []ResourceEntry             `json:"available_resources"`
}

// GetSurvivorInterface public path: the token is the user's memorial id.
// Private path: the token must belong to a confirmed activation.
func (s *EmergencyService) GetSurvivorInterface(ctx context.Context, accessToken string, isPublic bool) (*SurvivorView, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("invalid access token: %w", models.ErrInvalidToken)
	}

	var (
		userID string
		req    access.AccessRequest
		level  string
	)
	if isPublic {
		userID = accessToken
		req = access.AccessRequest{AccessorType: access.AccessorPublic, AccessToken: accessToken}
		level = AccessLevelPublic
	} else {
		activation, err := s.store.GetActivationByToken(ctx, accessToken)
		if err != nil || activation.Status != models.ActivationConfirmed {
			return nil, fmt.Errorf("invalid access token: %w", models.ErrInvalidToken)
		}
		userID = activation.UserID
		req = access.AccessRequest{AccessorType: access.AccessorFamilyMember, AccessToken: accessToken}
		level = AccessLevelFamilyMember
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("invalid access token: %w", models.ErrInvalidToken)
		}
		return nil, err
	}
	resources, err := s.resolver.GetAccessibleResources(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	name := profile.FullName
	if name == "" {
		name = "Unknown User"
	}
	return &SurvivorView{
		UserID:             userID,
		Name:               name,
		AvatarURL:          profile.AvatarURL,
		MemorialMessage:    profile.MemorialMessage,
		AccessLevel:        level,
		Resources:          resources,
		AvailableResources: flatten(resources),
	}, nil
}

func flatten(r *models.AccessibleResources) []ResourceEntry {
	out := make([]ResourceEntry, 0, len(r.Documents)+len(r.Contacts)+len(r.TimeCapsules)+len(r.Guidance))
	for _, d := range r.Documents {
		out = append(out, ResourceEntry{ID: d.ID, Title: d.FileName, ResourceType: "document", Category: string(d.Gate())})
	}
	for _, c := range r.Contacts {
		out = append(out, ResourceEntry{ID: c.ID, Title: c.Name, ResourceType: "contact", Category: c.Relationship})
	}
	for _, c := range r.TimeCapsules {
		out = append(out, ResourceEntry{ID: c.ID, Title: c.Title, ResourceType: "time_capsule"})
	}
	for _, g := range r.Guidance {
		out = append(out, ResourceEntry{ID: g.ID, Title: g.Title, ResourceType: "guidance", Category: g.EntryType})
	}
	return out
}
