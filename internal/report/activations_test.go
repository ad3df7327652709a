package report

import (
	"bytes"
	"testing"
	"time"

	"family-shield/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestActivationExport(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	confirmed := created.Add(5 * time.Hour)
	notes := "confirmed by sister"
	failure := "smtp timeout"
	reminder := models.ReminderFirst

	audits := []ActivationAudit{
		{
			Activation: &models.EmergencyActivation{
				ID: "a1", TriggerType: models.TriggerInactivityDetected, Status: models.ActivationConfirmed,
				CreatedAt: created, TokenExpiresAt: created.Add(72 * time.Hour), ConfirmedAt: &confirmed, Notes: &notes,
			},
			Notifications: []*models.GuardianNotification{
				{GuardianID: "g1", NotificationType: models.NotificationActivationRequest, Priority: models.PriorityHigh,
					DeliveryStatus: models.DeliverySent, SentAt: &created, RespondedAt: &confirmed},
				{GuardianID: "g2", NotificationType: models.NotificationVerificationNeeded, ReminderType: &reminder,
					Priority: models.PriorityHigh, DeliveryStatus: models.DeliveryFailed, DeliveryError: &failure},
			},
		},
		{Activation: nil},
	}

	data, err := ActivationExport(audits)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ActivationsSheet, NotificationsSheet}, f.GetSheetList())

	rows, err := f.GetRows(ActivationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ActivationsHeader, rows[0])
	assert.Equal(t, []string{"a1", "inactivity_detected", "", "confirmed", "2026-02-01 10:00:00", "2026-02-04 10:00:00", "2026-02-01 15:00:00", notes}, rows[1])

	rows, err = f.GetRows(NotificationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "g1", rows[1][1])
	assert.Equal(t, "2026-02-01 15:00:00", rows[1][9])
	assert.Equal(t, "first_reminder", rows[2][3])
	assert.Equal(t, failure, rows[2][6])
}

func TestActivationExport_Empty(t *testing.T) {
	data, err := ActivationExport(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ActivationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
