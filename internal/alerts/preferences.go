package alerts

import (
	"strings"
	"time"

	"github.com/hugh/chimeo/internal/database/models"
)

// Skip reasons recorded on delivery logs.
const (
	ReasonNoPushToken  = "no_push_token"
	ReasonCriticalOnly = "critical_only"
	ReasonIncidentType = "incident_type"
	ReasonQuietHours   = "quiet_hours"
	ReasonInactive     = "inactive_user"
	ReasonUnregistered = "unregistered_token"
)

// skipReason applies the user's notification preferences. Critical alerts
// ignore quiet hours but still honor the incident-type filter.
func skipReason(user *models.User, alert *models.OrganizationAlert, now time.Time) string {
	if !user.IsActive {
		return ReasonInactive
	}
	if strings.TrimSpace(user.PushToken) == "" {
		return ReasonNoPushToken
	}

	prefs := user.Preferences
	critical := alert.Severity == models.SeverityCritical

	if prefs.CriticalOnly && !critical {
		return ReasonCriticalOnly
	}
	if len(prefs.IncidentTypes) > 0 && !containsFold(prefs.IncidentTypes, alert.Type) {
		return ReasonIncidentType
	}
	if !critical && inQuietHours(prefs, now) {
		return ReasonQuietHours
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// inQuietHours handles windows that wrap midnight ("22:00" to "07:00").
func inQuietHours(p models.NotificationPreferences, now time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}
	start, err1 := time.Parse("15:04", p.QuietHoursStart)
	end, err2 := time.Parse("15:04", p.QuietHoursEnd)
	if err1 != nil || err2 != nil {
		return false
	}

	loc := time.UTC
	if p.Timezone != "" {
		if l, err := time.LoadLocation(p.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	minute := local.Hour()*60 + local.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()

	switch {
	case from == to:
		return false
	case from < to:
		return minute >= from && minute < to
	default:
		return minute >= from || minute < to
	}
}
