package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"family-shield/internal/models"
)

const (
	activationTitle = "Emergency Activation Request - Action Required"
	deliveryEmail   = "email"
	expiryLayout    = "Jan 2, 2006 3:04 PM MST"
	maxInstructions = 5
)

var defaultInstructions = []string{
	"Review and verify the emergency activation request",
	"Contact other guardians to coordinate response",
	"Follow established emergency protocols",
	"Document all actions taken",
}

// VerificationURL {baseURL}/emergency/verify/{token}
func VerificationURL(baseURL, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/emergency/verify/" + token
}

// ReasonText human-readable activation reason
func ReasonText(t models.TriggerType) string {
	switch t {
	case models.TriggerInactivityDetected:
		return "Extended period of inactivity detected"
	case models.TriggerManualGuardian:
		return "Manual activation requested by guardian"
	case models.TriggerAdminOverride:
		return "Administrative emergency activation"
	case models.TriggerHealthCheckFailure:
		return "Multiple missed health check responses"
	}
	return "Emergency activation requested"
}

// PriorityFor maps a trigger type to notification priority
func PriorityFor(t models.TriggerType) models.Priority {
	switch t {
	case models.TriggerManualGuardian, models.TriggerAdminOverride:
		return models.PriorityUrgent
	case models.TriggerInactivityDetected:
		return models.PriorityHigh
	case models.TriggerHealthCheckFailure:
		return models.PriorityMedium
	}
	return models.PriorityMedium
}

// ReminderPriority final warnings are urgent, everything else high
func ReminderPriority(r models.ReminderType) models.Priority {
	if r == models.ReminderFinal {
		return models.PriorityUrgent
	}
	return models.PriorityHigh
}

func urgencyLabel(r models.ReminderType) string {
	switch r {
	case models.ReminderUrgent:
		return "URGENT REMINDER"
	case models.ReminderFinal:
		return "FINAL WARNING"
	}
	return "REMINDER"
}

func reminderTitle(r models.ReminderType) string {
	stage := strings.ToUpper(strings.ReplaceAll(string(r), "_", " "))
	return fmt.Sprintf("Reminder: Emergency Activation Request (%s)", stage)
}

// templateData everything the message builders and the email template read
type templateData struct {
	GuardianName     string
	UserName         string
	ActivationReason string
	VerificationURL  string
	ExpiresAt        string
	Instructions     []string
	Reminder         string
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format(expiryLayout)
}

func notificationMessage(d templateData) string {
	return fmt.Sprintf("Emergency activation requested for %s. Reason: %s. Your verification is required by %s. Please check your email for detailed instructions.",
		d.UserName, d.ActivationReason, d.ExpiresAt)
}

func reminderMessage(r models.ReminderType, d templateData) string {
	return fmt.Sprintf("%s: Emergency activation for %s still pending your verification. This request expires %s. Please respond immediately.",
		urgencyLabel(r), d.UserName, d.ExpiresAt)
}

func smsMessage(d templateData) string {
	return fmt.Sprintf("URGENT: Emergency activation request for %s. Please check your email and respond within %s. Visit: %s",
		d.UserName, d.ExpiresAt, d.VerificationURL)
}

func emailSubject(userName string, reminder bool) string {
	subject := "Emergency Activation Request - " + userName
	if reminder {
		return "REMINDER: " + subject
	}
	return subject
}

// emergencyInstructions up to five completed emergency procedures by priority, then the defaults
func emergencyInstructions(entries []models.GuidanceEntry) []string {
	var procedures []models.GuidanceEntry
	for _, e := range entries {
		if e.EntryType == models.GuidanceEmergencyProcedure && e.IsCompleted {
			procedures = append(procedures, e)
		}
	}
	sort.SliceStable(procedures, func(i, j int) bool { return procedures[i].Priority < procedures[j].Priority })
	if len(procedures) > maxInstructions {
		procedures = procedures[:maxInstructions]
	}
	out := make([]string, 0, len(procedures)+len(defaultInstructions))
	for _, p := range procedures {
		out = append(out, p.Title)
	}
	return append(out, defaultInstructions...)
}
