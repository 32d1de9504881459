// Package push delivers alert notifications to devices.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/chimeo/internal/database/models"
)

// ErrUnregistered means the device token is no longer valid and should be cleared.
var ErrUnregistered = errors.New("push token unregistered")

type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityNormal  Priority = "normal"
)

// InterruptionLevel follows the iOS notification interruption levels.
type InterruptionLevel string

const (
	InterruptionCritical      InterruptionLevel = "critical"
	InterruptionTimeSensitive InterruptionLevel = "time-sensitive"
	InterruptionActive        InterruptionLevel = "active"
	InterruptionPassive       InterruptionLevel = "passive"
)

// Message is the provider-neutral notification payload.
type Message struct {
	Title        string
	Body         string
	Sound        string
	Priority     Priority
	Interruption InterruptionLevel
	Data         map[string]string
}

type Provider interface {
	Send(ctx context.Context, token string, msg Message) error
}

// ForAlert builds the severity-tiered payload for an alert.
func ForAlert(alert *models.OrganizationAlert) Message {
	msg := Message{
		Title: fmt.Sprintf("%s: %s", alert.OrganizationName, alert.Title),
		Body:  alert.Description,
		Sound: "default",
		Data: map[string]string{
			"alert_id":        alert.ID.String(),
			"organization_id": alert.OrganizationID,
			"severity":        string(alert.Severity),
			"type":            alert.Type,
		},
	}
	if alert.IsGroupScoped() {
		msg.Data["group_id"] = alert.GroupID.String()
	}

	switch alert.Severity {
	case models.SeverityCritical:
		msg.Sound = "critical"
		msg.Priority = PriorityHigh
		msg.Interruption = InterruptionCritical
	case models.SeverityHigh:
		msg.Priority = PriorityHigh
		msg.Interruption = InterruptionTimeSensitive
	case models.SeverityMedium:
		msg.Priority = PriorityDefault
		msg.Interruption = InterruptionActive
	default:
		msg.Priority = PriorityNormal
		msg.Interruption = InterruptionPassive
	}
	return msg
}

// LogProvider writes notifications to the log instead of sending them.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Send(_ context.Context, token string, msg Message) error {
	p.logger.Info("push notification",
		"token_suffix", suffix(token, 6),
		"title", msg.Title,
		"priority", msg.Priority,
		"interruption", msg.Interruption,
	)
	return nil
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
