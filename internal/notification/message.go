package notification

import (
	"fmt"
	"strings"

	"openelis-alert/internal/models"
)

const messageTimeLayout = "2006-01-02 15:04:05 MST"

// BuildSubject 通知标题：Alert: <SEVERITY> - <TYPE>
func BuildSubject(alert *models.Alert) string {
	return fmt.Sprintf("Alert: %s - %s", alert.Severity, alert.AlertType)
}

// BuildMessage 通知正文
func BuildMessage(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert Type: %s\n", alert.AlertType)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Entity: %s (ID: %d)\n", alert.Entity.EntityType, alert.Entity.EntityID)
	fmt.Fprintf(&b, "Message: %s\n", alert.Message)
	fmt.Fprintf(&b, "Time: %s\n", alert.StartTime.Format(messageTimeLayout))
	return b.String()
}

// BuildSMSBody 短信正文：标题 + 空行 + 正文
func BuildSMSBody(subject, message string) string {
	return subject + "\n\n" + message
}

// ExtractDigits 只保留号码中的数字："+1 (555) 123-4567" → "15551234567"
func ExtractDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
