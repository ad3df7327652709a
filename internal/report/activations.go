package report

import (
	"bytes"
	"fmt"
	"time"

	"family-shield/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	ActivationsSheet   = "Activations"
	NotificationsSheet = "Notifications"
	ContentType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout         = "2006-01-02 15:04:05"
)

// ActivationsHeader audit columns of the activation sheet
var ActivationsHeader = []string{
	"Activation ID",
	"Trigger Type",
	"Guardian ID",
	"Status",
	"Created At",
	"Token Expires At",
	"Confirmed At",
	"Notes",
}

// NotificationsHeader audit columns of the notification sheet
var NotificationsHeader = []string{
	"Activation ID",
	"Guardian ID",
	"Type",
	"Reminder",
	"Priority",
	"Delivery Status",
	"Delivery Error",
	"Sent At",
	"Read At",
	"Responded At",
}

// ActivationAudit one activation with the notifications issued for its token
type ActivationAudit struct {
	Activation    *models.EmergencyActivation
	Notifications []*models.GuardianNotification
}

// ActivationExport renders the user's activation history as an XLSX workbook
func ActivationExport(audits []ActivationAudit) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ActivationsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(NotificationsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE2E2"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, ActivationsSheet, ActivationsHeader, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, NotificationsSheet, NotificationsHeader, headerStyle); err != nil {
		return nil, err
	}

	activationRow, notificationRow := 2, 2
	for _, audit := range audits {
		a := audit.Activation
		if a == nil {
			continue
		}
		if err := setRow(f, ActivationsSheet, activationRow, []interface{}{
			a.ID,
			string(a.TriggerType),
			deref(a.GuardianID),
			string(a.Status),
			formatTime(&a.CreatedAt),
			formatTime(&a.TokenExpiresAt),
			formatTime(a.ConfirmedAt),
			deref(a.Notes),
		}); err != nil {
			return nil, err
		}
		activationRow++

		for _, n := range audit.Notifications {
			reminder := ""
			if n.ReminderType != nil {
				reminder = string(*n.ReminderType)
			}
			if err := setRow(f, NotificationsSheet, notificationRow, []interface{}{
				a.ID,
				n.GuardianID,
				string(n.NotificationType),
				reminder,
				string(n.Priority),
				string(n.DeliveryStatus),
				deref(n.DeliveryError),
				formatTime(n.SentAt),
				formatTime(n.ReadAt),
				formatTime(n.RespondedAt),
			}); err != nil {
				return nil, err
			}
			notificationRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := setRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
