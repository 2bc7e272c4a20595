package services

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"chatagent-backend/models"
)

// ReplyWindow is one day's auto-reply window in "HH:MM" local time.
type ReplyWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ShouldAutoReply decides whether the assistant replies for this app right
// now. Off never replies; scheduled replies only inside the weekly window
// for the current day. Inbound messages are still persisted either way.
func ShouldAutoReply(app *models.App, now time.Time) bool {
	switch app.ReplyMode {
	case models.ReplyModeOff:
		return false
	case models.ReplyModeScheduled:
		return inScheduleWindow(app, now)
	default:
		return true
	}
}

func inScheduleWindow(app *models.App, now time.Time) bool {
	if app.ReplySchedule == "" {
		return false
	}

	var schedule map[string]ReplyWindow
	if err := json.Unmarshal([]byte(app.ReplySchedule), &schedule); err != nil {
		log.Printf("[ReplyMode] Invalid schedule for app %s: %v", app.AppID, err)
		return false
	}

	day := strings.ToLower(now.Format("Mon")) // "mon", "tue", ...
	window, ok := schedule[day]
	if !ok || window.Start == "" || window.End == "" {
		return false
	}

	// String comparison works for zero-padded HH:MM.
	current := now.Format("15:04")
	return window.Start <= current && current <= window.End
}
