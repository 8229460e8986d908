package task

import (
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
)

const (
	calendarBaseURL    = "https://calendar.google.com/calendar/render"
	calendarDateFormat = "20060102T150405Z"
	calendarDuration   = time.Hour
)

var errNoDueDate = errors.New("task has no due date")

// CalendarURL returns a Google Calendar "add event" link for t, lasting one hour from its due date.
func CalendarURL(t Task) (string, error) {
	if t.DueDate == nil {
		return "", core.NewValidationError(errNoDueDate, core.FieldError{Field: "due_date", Error: errNoDueDate.Error()})
	}
	start := t.DueDate.UTC()
	end := start.Add(calendarDuration)

	v := make(url.Values)
	v.Set("action", "TEMPLATE")
	v.Set("text", t.Title)
	v.Set("details", core.StringValue(t.Description))
	v.Set("dates", start.Format(calendarDateFormat)+"/"+end.Format(calendarDateFormat))
	v.Set("location", core.StringValue(t.MeetingLink))
	return calendarBaseURL + "?" + v.Encode(), nil
}
