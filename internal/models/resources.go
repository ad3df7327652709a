package models

import (
	"strings"
	"time"
)

// DocumentCategory coarse category used for permission gating
type DocumentCategory string

const (
	CategoryHealth    DocumentCategory = "health"
	CategoryFinancial DocumentCategory = "financial"
	CategoryLegal     DocumentCategory = "legal"
	CategoryChildren  DocumentCategory = "children"
	CategoryPersonal  DocumentCategory = "personal"
	CategoryOther     DocumentCategory = "other"
)

var categoryAliases = map[string]DocumentCategory{
	"health":       CategoryHealth,
	"medical":      CategoryHealth,
	"insurance":    CategoryFinancial,
	"financial":    CategoryFinancial,
	"bank":         CategoryFinancial,
	"banking":      CategoryFinancial,
	"tax":          CategoryFinancial,
	"investment":   CategoryFinancial,
	"property":     CategoryFinancial,
	"legal":        CategoryLegal,
	"will":         CategoryLegal,
	"estate":       CategoryLegal,
	"children":     CategoryChildren,
	"child":        CategoryChildren,
	"guardianship": CategoryChildren,
	"personal":     CategoryPersonal,
	"identity":     CategoryPersonal,
}

// NormalizeCategory maps free-form document categories onto the gated set.
// Unknown values fall into CategoryOther.
func NormalizeCategory(raw string) DocumentCategory {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return CategoryOther
}

// Document documents row (subset read by the resolver)
type Document struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	FileName    string    `json:"file_name" db:"file_name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Category    string    `json:"category" db:"category"`
	IsImportant bool      `json:"is_important" db:"is_important"`
	IsPublic    bool      `json:"is_public" db:"is_public"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Gate returns the normalized category of the document
func (d *Document) Gate() DocumentCategory {
	return NormalizeCategory(d.Category)
}

// AccessibleDocument a document as shown to an accessor
type AccessibleDocument struct {
	Document
	IsAccessible bool `json:"is_accessible"`
}

// EmergencyContact emergency_contacts row
type EmergencyContact struct {
	ID           string  `json:"id" db:"id"`
	UserID       string  `json:"user_id" db:"user_id"`
	Name         string  `json:"name" db:"name"`
	Relationship string  `json:"relationship" db:"relationship"`
	Email        string  `json:"email" db:"email"`
	Phone        *string `json:"phone,omitempty" db:"phone"`
	Priority     int     `json:"priority" db:"priority"`
	IsPublic     bool    `json:"is_public" db:"is_public"`
}

// TimeCapsule time_capsules row
type TimeCapsule struct {
	ID                  string     `json:"id" db:"id"`
	UserID              string     `json:"user_id" db:"user_id"`
	Title               string     `json:"title" db:"title"`
	Message             string     `json:"message" db:"message"`
	RecipientGuardianID *string    `json:"recipient_guardian_id,omitempty" db:"recipient_guardian_id"`
	DeliveryCondition   string     `json:"delivery_condition" db:"delivery_condition"`
	DeliverAt           *time.Time `json:"deliver_at,omitempty" db:"deliver_at"`
	IsPublic            bool       `json:"is_public" db:"is_public"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

const (
	CapsuleOnActivation = "on_activation"
	CapsuleOnDate       = "on_date"
)

// GuidanceEntry family_guidance_entries row
type GuidanceEntry struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"user_id" db:"user_id"`
	EntryType          string    `json:"entry_type" db:"entry_type"`
	Title              string    `json:"title" db:"title"`
	Content            string    `json:"content" db:"content"`
	Priority           int       `json:"priority" db:"priority"`
	IsCompleted        bool      `json:"is_completed" db:"is_completed"`
	IsPublic           bool      `json:"is_public" db:"is_public"`
	RelatedDocumentIDs []string  `json:"related_document_ids" db:"related_document_ids"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

const GuidanceEmergencyProcedure = "emergency_procedure"

// Profile profiles row (read-only)
type Profile struct {
	UserID          string  `json:"user_id" db:"user_id"`
	FullName        string  `json:"full_name" db:"full_name"`
	Email           string  `json:"email" db:"email"`
	AvatarURL       *string `json:"avatar_url,omitempty" db:"avatar_url"`
	MemorialMessage *string `json:"memorial_message,omitempty" db:"memorial_message"`
}

// AccessibleResources computed per accessor; never persisted
type AccessibleResources struct {
	Documents    []AccessibleDocument `json:"documents"`
	Contacts     []EmergencyContact   `json:"contacts"`
	TimeCapsules []TimeCapsule        `json:"time_capsules"`
	Guidance     []GuidanceEntry      `json:"guidance"`
}
