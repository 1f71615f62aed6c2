package workflow

import (
	"time"
)

// Urgency classifies how late an in-progress request is.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencySoon
	UrgencyUrgent
)

func (u Urgency) String() string {
	switch u {
	case UrgencySoon:
		return "soon"
	case UrgencyUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Reminder is the escalation state that drives the remind control.
type Reminder struct {
	Urgency Urgency `json:"urgency"`
	Color   string  `json:"color"`
	Label   string  `json:"label"`
	Overdue bool    `json:"overdue"`
	NearDue bool    `json:"nearDue"`
}

// ClassifyReminder compares an end time with now. Overdue compares calendar
// dates only, in now's location; near-due means the end is at most one day
// ahead.
func ClassifyReminder(endTime, now time.Time) Reminder {
	if dateOf(now).After(dateOf(endTime.In(now.Location()))) {
		return Reminder{Urgency: UrgencyUrgent, Color: "red", Label: "Remind (overdue)", Overdue: true}
	}
	left := endTime.Sub(now)
	if left > 0 && left <= 24*time.Hour {
		return Reminder{Urgency: UrgencySoon, Color: "orange", Label: "Remind (due soon)", NearDue: true}
	}
	return Reminder{Urgency: UrgencyNormal, Color: "amber", Label: "Remind"}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
