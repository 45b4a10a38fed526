package extract

import (
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

const (
	// MaxAlertCandidates caps alerts created per turn.
	MaxAlertCandidates     = 2
	MaxAlertTitleLen       = 120
	MaxAlertBodyLen        = 500
	DefaultAlertConfidence = 0.8
)

// Repeat rules accepted on an alert.
const (
	RepeatDaily  = "DAILY"
	RepeatWeekly = "WEEKLY"
)

// AlertRules carries the timezone used for due times without an offset.
type AlertRules struct {
	Location *time.Location
}

// AlertCandidate is a validated reminder ready to be persisted.
type AlertCandidate struct {
	Title      string
	Body       string
	DueAt      time.Time
	RepeatRule *string
	Confidence float64
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDueAt accepts wall-clock times in loc or any RFC3339/ISO-8601 timestamp.
func ParseDueAt(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Time(dt), true
}

// ValidateAlerts reads {"create":[...]} and returns at most two valid alerts.
func ValidateAlerts(obj map[string]any, rules AlertRules) []AlertCandidate {
	if obj == nil {
		return nil
	}
	var out []AlertCandidate
	for _, a := range Objects(obj["create"], MaxAlertCandidates) {
		title := Truncate(String(a["title"]), MaxAlertTitleLen)
		if title == "" {
			continue
		}
		due, ok := ParseDueAt(String(a["due_at"]), rules.Location)
		if !ok {
			continue
		}
		conf, ok := Float(a["confidence"])
		if !ok {
			conf = DefaultAlertConfidence
		}
		out = append(out, AlertCandidate{
			Title:      title,
			Body:       Truncate(String(a["body"]), MaxAlertBodyLen),
			DueAt:      due,
			RepeatRule: repeatRule(a["repeat_rule"]),
			Confidence: Clamp01(conf),
		})
	}
	return out
}

func repeatRule(v any) *string {
	switch r := strings.ToUpper(String(v)); r {
	case RepeatDaily, RepeatWeekly:
		return &r
	}
	return nil
}
