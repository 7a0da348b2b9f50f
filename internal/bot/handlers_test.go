package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/confirm"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/dispatch"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/roster"
	kit "github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

type captureAdapter struct {
	replies []string
}

func (c *captureAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *captureAdapter) Stop(ctx context.Context) error                         { return nil }
func (c *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	c.replies = append(c.replies, text)
	return nil
}
func (c *captureAdapter) SendDocument(ctx context.Context, to kit.ChatTarget, filename string, data []byte, caption string) error {
	c.replies = append(c.replies, "doc:"+filename)
	return nil
}

type stubCalendar struct {
	loc     *time.Location
	events  []calendar.Event
	deleted []string
	created []calendar.Event
	muted   map[string]bool
}

func newStubCalendar() *stubCalendar {
	loc, _ := time.LoadLocation("Asia/Seoul")
	return &stubCalendar{loc: loc, muted: map[string]bool{}}
}

func (s *stubCalendar) Location() *time.Location { return s.loc }
func (s *stubCalendar) ListUpcoming(ctx context.Context, limit int) ([]calendar.Event, error) {
	return s.events, nil
}
func (s *stubCalendar) ListRange(ctx context.Context, from, to time.Time, limit int) ([]calendar.Event, error) {
	return s.events, nil
}
func (s *stubCalendar) Create(ctx context.Context, start time.Time, summary string, muted bool) (calendar.Event, error) {
	ev := calendar.Event{ID: "new", Start: start, Summary: summary, Muted: muted}
	s.created = append(s.created, ev)
	return ev, nil
}
func (s *stubCalendar) Update(ctx context.Context, id string, p calendar.Patch) (calendar.Event, error) {
	return calendar.Event{ID: id}, nil
}
func (s *stubCalendar) SetMuted(ctx context.Context, id string, muted bool) error {
	s.muted[id] = muted
	return nil
}
func (s *stubCalendar) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type stubBroadcaster struct {
	texts   []string
	targets [][]int64
}

func (s *stubBroadcaster) Broadcast(ctx context.Context, targets []int64, text string, prune dispatch.Pruner) dispatch.Report {
	s.texts = append(s.texts, text)
	s.targets = append(s.targets, targets)
	return dispatch.Report{Sent: len(targets)}
}

type fixture struct {
	h   *Handlers
	cal *stubCalendar
	ad  *captureAdapter
	bc  *stubBroadcaster
	mem *roster.Roster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal := newStubCalendar()
	bc := &stubBroadcaster{}
	mem := roster.New(nil, logx.Nop())
	h := NewHandlers(logx.Nop(), cal, mem, bc, confirm.New(time.Minute), Options{})
	return &fixture{h: h, cal: cal, ad: &captureAdapter{}, bc: bc, mem: mem}
}

func (f *fixture) request(text string, chatID int64) *Request {
	name, args, _ := parseCommand(text)
	return &Request{
		Msg:     kit.Message{ChatID: chatID, Text: text},
		Command: name,
		Args:    args,
		Adapter: f.ad,
		Logger:  logx.Nop(),
	}
}

func (f *fixture) lastReply(t *testing.T) string {
	t.Helper()
	if len(f.ad.replies) == 0 {
		t.Fatal("no reply captured")
	}
	return f.ad.replies[len(f.ad.replies)-1]
}

func TestStartSubscribes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.h.Start(t.Context(), f.request("/start", 42)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !f.mem.Has(42) {
		t.Fatal("chat not subscribed after /start")
	}
	if !strings.Contains(f.lastReply(t), "일정 알림 봇") {
		t.Fatalf("greeting = %q", f.lastReply(t))
	}
}

func TestListMarksMutedEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Now().In(f.cal.loc)
	f.cal.events = []calendar.Event{
		{ID: "a", Start: now.Add(2 * time.Hour), Summary: "공개 일정"},
		{ID: "b", Start: now.Add(4 * time.Hour), Summary: "조용한 일정", Muted: true},
	}
	if err := f.h.List(t.Context(), f.request("/list", 1)); err != nil {
		t.Fatalf("List: %v", err)
	}
	reply := f.lastReply(t)
	if !strings.Contains(reply, "*조용한 일정") {
		t.Fatalf("muted marker missing:\n%s", reply)
	}
	if strings.Contains(reply, "*공개 일정") {
		t.Fatalf("unmuted event marked:\n%s", reply)
	}
	if !strings.Contains(reply, "* : 알림이 울리지 않도록 설정된 일정") {
		t.Fatalf("legend missing:\n%s", reply)
	}
}

func TestListEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.h.List(t.Context(), f.request("/list", 1)); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := f.lastReply(t); got != "❌ 일정이 없습니다." {
		t.Fatalf("reply = %q", got)
	}
}

func TestAddRejectsPast(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.h.Add(t.Context(), f.request("/add 200101 0900 옛날 일정", 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := f.lastReply(t); got != "❌ 과거의 일정은 추가할 수 없습니다." {
		t.Fatalf("reply = %q", got)
	}
	if len(f.cal.created) != 0 {
		t.Fatal("past event was created")
	}
}

func TestAddCreatesEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	date := time.Now().In(f.cal.loc).AddDate(0, 0, 7).Format("060102")
	if err := f.h.Add(t.Context(), f.request("/add "+date+" 1430 분회 모임", 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(f.cal.created) != 1 || f.cal.created[0].Summary != "분회 모임" {
		t.Fatalf("created = %+v", f.cal.created)
	}
	if !strings.Contains(f.lastReply(t), "✅ 새 일정이 추가되었습니다") {
		t.Fatalf("reply = %q", f.lastReply(t))
	}
}

func TestMuteByIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Now().In(f.cal.loc)
	f.cal.events = []calendar.Event{
		{ID: "a", Start: now.Add(time.Hour), Summary: "첫번째"},
		{ID: "b", Start: now.Add(2 * time.Hour), Summary: "두번째"},
	}
	if err := f.h.Mute(t.Context(), f.request("/mute 2", 1)); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if !f.cal.muted["b"] {
		t.Fatalf("muted = %v, want b", f.cal.muted)
	}
	if err := f.h.Mute(t.Context(), f.request("/mute 9", 1)); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if got := f.lastReply(t); got != "❌ 유효한 번호를 입력하세요." {
		t.Fatalf("out-of-range reply = %q", got)
	}
}

func TestNoticeBroadcastsToRecipients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mem.AddRecipient(t.Context(), 1)
	f.mem.AddRecipient(t.Context(), 2)

	if err := f.h.Notice(t.Context(), f.request("/noti 내일 회의가 있습니다", 9)); err != nil {
		t.Fatalf("Notice: %v", err)
	}
	if len(f.bc.texts) != 1 || f.bc.texts[0] != "📢 알림:\n\n내일 회의가 있습니다" {
		t.Fatalf("broadcast = %q", f.bc.texts)
	}
	if len(f.bc.targets[0]) != 2 {
		t.Fatalf("targets = %v", f.bc.targets[0])
	}
}

func TestConfirmFlowDeleteUpcoming(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	now := time.Now().In(f.cal.loc)
	f.cal.events = []calendar.Event{
		{ID: "a", Start: now.Add(time.Hour), Summary: "하나"},
		{ID: "b", Start: now.Add(2 * time.Hour), Summary: "둘"},
	}

	if err := f.h.DeleteAllPrompt(t.Context(), f.request("/delall", 7)); err != nil {
		t.Fatalf("DeleteAllPrompt: %v", err)
	}
	if !strings.Contains(f.lastReply(t), "/ok 를 입력하세요") {
		t.Fatalf("prompt = %q", f.lastReply(t))
	}
	// Prompt text carries the configured window, not a fixed number.
	if !strings.Contains(f.lastReply(t), "⏳ 60초 이내 미응답 시 취소됩니다.") {
		t.Fatalf("prompt window = %q", f.lastReply(t))
	}
	// A second arm while pending is rejected.
	if err := f.h.DeleteHistoryPrompt(t.Context(), f.request("/delhistory", 7)); err != nil {
		t.Fatalf("DeleteHistoryPrompt: %v", err)
	}
	if !strings.Contains(f.lastReply(t), "이전 확인 작업이 진행 중입니다") {
		t.Fatalf("busy reply = %q", f.lastReply(t))
	}

	if err := f.h.Confirm(t.Context(), f.request("/ok", 7)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(f.cal.deleted) != 2 {
		t.Fatalf("deleted = %v, want both events", f.cal.deleted)
	}
	if got := f.lastReply(t); got != "✅ 앞으로의 일정 2건을 삭제했습니다." {
		t.Fatalf("reply = %q", got)
	}
	// Confirm consumed the action.
	if err := f.h.Confirm(t.Context(), f.request("/ok", 7)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := f.lastReply(t); got != "❌ 확인할 작업이 없습니다." {
		t.Fatalf("reply = %q", got)
	}
}

func TestConfirmWithoutPrompt(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.h.Confirm(t.Context(), f.request("/ok", 7)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := f.lastReply(t); got != "❌ 확인할 작업이 없습니다." {
		t.Fatalf("reply = %q", got)
	}
	if len(f.cal.deleted) != 0 {
		t.Fatal("confirm with no pending action deleted events")
	}
}
