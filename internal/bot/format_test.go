package bot

import (
	"testing"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/reminder"
)

func TestFormatEventTime(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, loc)

	tests := []struct {
		name string
		when time.Time
		want string
	}{
		{
			name: "same year afternoon",
			when: time.Date(2026, 9, 1, 14, 30, 0, 0, loc),
			want: "09/01(화) 오후 02:30",
		},
		{
			name: "same year morning",
			when: time.Date(2026, 9, 6, 9, 5, 0, 0, loc),
			want: "09/06(일) 오전 09:05",
		},
		{
			name: "next year carries year prefix",
			when: time.Date(2027, 1, 2, 11, 0, 0, 0, loc),
			want: "27/01/02(토) 오전 11:00",
		},
		{
			name: "midnight is morning",
			when: time.Date(2026, 9, 1, 0, 0, 0, 0, loc),
			want: "09/01(화) 오전 12:00",
		},
		{
			name: "noon is afternoon",
			when: time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
			want: "09/01(화) 오후 12:00",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEventTime(tt.when, now); got != tt.want {
				t.Fatalf("FormatEventTime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	t.Parallel()
	loc, _ := time.LoadLocation("Asia/Seoul")

	got, err := ParseDateTime("260915", "1430", loc)
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	want := time.Date(2026, 9, 15, 14, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("ParseDateTime = %v, want %v", got, want)
	}

	if _, err := ParseDateTime("2609", "1430", loc); err == nil {
		t.Fatal("short date accepted")
	}
	if _, err := ParseDateTime("261301", "0900", loc); err == nil {
		t.Fatal("month 13 accepted")
	}
}

func TestRenderReminder(t *testing.T) {
	t.Parallel()
	loc, _ := time.LoadLocation("Asia/Seoul")
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, loc)
	ev := calendar.Event{
		ID:      "ev1",
		Start:   time.Date(2026, 8, 30, 12, 0, 0, 0, loc),
		Summary: "지부 운영위원회",
	}

	got := RenderReminder(ev, reminder.ThresholdThreeHour, now)
	want := "🔔 [3시간 전 알림]\n일정: 지부 운영위원회\n시간: 08/30(일) 오후 12:00"
	if got != want {
		t.Fatalf("RenderReminder = %q, want %q", got, want)
	}

	if got := RenderReminder(ev, reminder.ThresholdOneWeek, now); got[:len("🔔 [일주일 전 알림]")] != "🔔 [일주일 전 알림]" {
		t.Fatalf("one week label missing: %q", got)
	}
}
