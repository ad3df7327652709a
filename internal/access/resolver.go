package access

import (
	"context"
	"fmt"
	"time"

	"family-shield/internal/clock"
	"family-shield/internal/models"
	"family-shield/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AccessorType who is asking for resources
type AccessorType string

const (
	AccessorGuardian     AccessorType = "guardian"
	AccessorFamilyMember AccessorType = "family_member"
	AccessorPublic       AccessorType = "public"
)

// AccessRequest identifies the accessor and the permissions they carry.
// For guardians Permissions must be the guardian's stored flags; a nil value grants nothing gated.
type AccessRequest struct {
	AccessorType AccessorType
	AccessorID   string
	AccessToken  string
	Permissions  *models.GuardianPermissions
}

// Resolver is the only place resource lists for dashboards and survivor views are built
type Resolver struct {
	store  repository.ResourcesRepository
	clock  clock.Clock
	logger *zap.Logger
}

func NewResolver(store repository.ResourcesRepository, clk clock.Clock, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, clock: clk, logger: logger}
}

// GetAccessibleResources loads the user's resources and keeps only what the accessor may see
func (r *Resolver) GetAccessibleResources(ctx context.Context, userID string, req AccessRequest) (*models.AccessibleResources, error) {
	switch req.AccessorType {
	case AccessorGuardian, AccessorFamilyMember, AccessorPublic:
	default:
		return nil, fmt.Errorf("unknown accessor type %q: %w", req.AccessorType, models.ErrInvalidArgument)
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", models.ErrInvalidArgument)
	}

	var (
		docs     []models.Document
		contacts []models.EmergencyContact
		capsules []models.TimeCapsule
		guidance []models.GuidanceEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		docs, err = r.store.ListDocuments(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		contacts, err = r.store.ListEmergencyContacts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		capsules, err = r.store.ListTimeCapsules(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		guidance, err = r.store.ListGuidanceEntries(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("Failed to load resources",
			zap.String("user_id", userID),
			zap.String("accessor_type", string(req.AccessorType)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}

	out := &models.AccessibleResources{
		Documents:    []models.AccessibleDocument{},
		Contacts:     []models.EmergencyContact{},
		TimeCapsules: []models.TimeCapsule{},
		Guidance:     []models.GuidanceEntry{},
	}
	for _, d := range docs {
		if CanSeeDocument(req, d) {
			out.Documents = append(out.Documents, models.AccessibleDocument{Document: d, IsAccessible: true})
		}
	}
	for _, c := range contacts {
		if req.AccessorType != AccessorPublic || c.IsPublic {
			out.Contacts = append(out.Contacts, c)
		}
	}
	now := r.clock.Now()
	for _, c := range capsules {
		if r.canSeeCapsule(req, c, now) {
			out.TimeCapsules = append(out.TimeCapsules, c)
		}
	}
	for _, e := range guidance {
		if !e.IsCompleted {
			continue
		}
		if req.AccessorType == AccessorPublic && !e.IsPublic {
			continue
		}
		out.Guidance = append(out.Guidance, e)
	}

	r.logger.Debug("Resolved accessible resources",
		zap.String("user_id", userID),
		zap.String("accessor_type", string(req.AccessorType)),
		zap.Int("documents", len(out.Documents)),
		zap.Int("contacts", len(out.Contacts)),
		zap.Int("time_capsules", len(out.TimeCapsules)),
		zap.Int("guidance", len(out.Guidance)),
	)
	return out, nil
}

// CanSeeDocument applies the category gate for one document.
// Health and financial documents always require the matching permission flag.
func CanSeeDocument(req AccessRequest, d models.Document) bool {
	category := d.Gate()
	perms := req.Permissions

	switch req.AccessorType {
	case AccessorPublic:
		if category == models.CategoryHealth || category == models.CategoryFinancial {
			return false
		}
		return d.IsPublic

	case AccessorFamilyMember:
		switch category {
		case models.CategoryHealth:
			return perms != nil && perms.CanAccessHealthDocs
		case models.CategoryFinancial:
			return perms != nil && perms.CanAccessFinancialDocs
		}
		return true

	case AccessorGuardian:
		if perms == nil {
			return false
		}
		switch category {
		case models.CategoryHealth:
			return perms.CanAccessHealthDocs
		case models.CategoryFinancial:
			return perms.CanAccessFinancialDocs
		case models.CategoryLegal:
			return perms.IsWillExecutor
		case models.CategoryChildren:
			return perms.IsChildGuardian
		}
		return d.IsImportant || d.IsPublic
	}
	return false
}

func (r *Resolver) canSeeCapsule(req AccessRequest, c models.TimeCapsule, now time.Time) bool {
	if c.DeliveryCondition == models.CapsuleOnDate && (c.DeliverAt == nil || now.Before(*c.DeliverAt)) {
		return false
	}
	// an addressed capsule is for its recipient only
	if c.RecipientGuardianID != nil {
		return req.AccessorType == AccessorGuardian && *c.RecipientGuardianID == req.AccessorID
	}
	if req.AccessorType == AccessorPublic {
		return c.IsPublic
	}
	return true
}
