package bot

import (
	"fmt"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/reminder"
)

var dowKorean = map[time.Weekday]string{
	time.Sunday:    "일",
	time.Monday:    "월",
	time.Tuesday:   "화",
	time.Wednesday: "수",
	time.Thursday:  "목",
	time.Friday:    "금",
	time.Saturday:  "토",
}

func dowKR(t time.Time) string { return dowKorean[t.Weekday()] }

func ampmKR(t time.Time) string {
	if t.Hour() < 12 {
		return "오전"
	}
	return "오후"
}

// FormatEventTime renders an event start for display: MM/DD within the
// current year, YY/MM/DD otherwise, with a Korean weekday and 12-hour time.
func FormatEventTime(t, now time.Time) string {
	datePart := t.Format("01/02")
	if t.Year() != now.Year() {
		datePart = t.Format("06/01/02")
	}
	return fmt.Sprintf("%s(%s) %s %s", datePart, dowKR(t), ampmKR(t), t.Format("03:04"))
}

// ParseDateTime parses the "YYMMDD HHMM" command argument pair in loc.
func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("0601021504", dateStr+timeStr, loc)
}

func thresholdLabel(th reminder.Threshold) string {
	switch th {
	case reminder.ThresholdThreeHour:
		return "3시간 전"
	case reminder.ThresholdOneDay:
		return "하루 전"
	case reminder.ThresholdOneWeek:
		return "일주일 전"
	default:
		return ""
	}
}

// RenderReminder builds the outgoing reminder text for one event.
func RenderReminder(ev calendar.Event, th reminder.Threshold, now time.Time) string {
	return fmt.Sprintf("🔔 [%s 알림]\n일정: %s\n시간: %s",
		thresholdLabel(th), ev.Summary, FormatEventTime(ev.Start, now))
}
