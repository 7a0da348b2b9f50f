package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/confirm"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/dispatch"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/roster"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Calendar is the slice of the calendar client the handlers use.
type Calendar interface {
	ListUpcoming(ctx context.Context, limit int) ([]calendar.Event, error)
	ListRange(ctx context.Context, from, to time.Time, limit int) ([]calendar.Event, error)
	Create(ctx context.Context, start time.Time, summary string, muted bool) (calendar.Event, error)
	Update(ctx context.Context, id string, p calendar.Patch) (calendar.Event, error)
	SetMuted(ctx context.Context, id string, muted bool) error
	Delete(ctx context.Context, id string) error
	Location() *time.Location
}

// Broadcaster fans a notice out to many chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, targets []int64, text string, prune dispatch.Pruner) dispatch.Report
}

// Options tunes the handlers.
type Options struct {
	// UpcomingLimit caps how many events list/index commands consider.
	UpcomingLimit int
	// Password returns the current admin registration password. Empty
	// disables registration.
	Password func() string
}

// Handlers implements every bot command.
type Handlers struct {
	log      logx.Logger
	cal      Calendar
	members  *roster.Roster
	disp     Broadcaster
	confirms *confirm.Manager

	upcomingLimit int
	password      func() string
	now           func() time.Time

	flowMu sync.Mutex
	flow   map[int64]adminState
}

func NewHandlers(log logx.Logger, cal Calendar, members *roster.Roster, disp Broadcaster, confirms *confirm.Manager, opt Options) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.UpcomingLimit <= 0 {
		opt.UpcomingLimit = 300
	}
	if opt.Password == nil {
		opt.Password = func() string { return "" }
	}
	return &Handlers{
		log:           log.With(logx.String("component", "bot")),
		cal:           cal,
		members:       members,
		disp:          disp,
		confirms:      confirms,
		upcomingLimit: opt.UpcomingLimit,
		password:      opt.Password,
		now:           time.Now,
		flow:          map[int64]adminState{},
	}
}

// Commands returns the full command registry.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "start", Description: "봇 시작 및 알림 구독", Handle: h.Start},
		{Name: "help", Description: "사용법 안내", Handle: h.Help},

		{Name: "list", Description: "등록된 일정 보기", Handle: h.List},
		{Name: "history", Description: "지난 30일 일정", Handle: h.History30},
		{Name: "history365", Description: "지난 1년 일정", Handle: h.History365},

		{Name: "add", Usage: "/add YYMMDD HHMM 내용", Access: AccessAdminOnly, Handle: h.Add},
		{Name: "edit", Usage: "/edit 번호 YYMMDD HHMM 내용", Access: AccessAdminOnly, Handle: h.Edit},
		{Name: "del", Usage: "/del 번호", Access: AccessAdminOnly, Handle: h.Delete},
		{Name: "mute", Usage: "/mute 번호", Access: AccessAdminOnly, Handle: h.Mute},
		{Name: "unmute", Usage: "/unmute 번호", Access: AccessAdminOnly, Handle: h.Unmute},

		{Name: "user", Access: AccessAdminOnly, Handle: h.UserCount},
		{Name: "noti", Usage: "/noti 내용", Access: AccessAdminOnly, Timeout: 2 * time.Minute, Handle: h.Notice},
		{Name: "adminnoti", Usage: "/adminnoti 내용", Access: AccessAdminOnly, Handle: h.AdminNotice},

		{Name: "delall", Access: AccessAdminOnly, Handle: h.DeleteAllPrompt},
		{Name: "delhistory", Access: AccessAdminOnly, Handle: h.DeleteHistoryPrompt},
		{Name: "ok", Handle: h.Confirm},

		{Name: "admin", Handle: h.AdminRegister},
		{Name: "adminroom", Handle: h.AdminRoom},
		{Name: "adminlist", Access: AccessAdminOnly, Handle: h.AdminList},
		{Name: "admindel", Usage: "/admindel 번호", Access: AccessAdminOnly, Handle: h.AdminDelete},

		{Name: "export", Access: AccessAdminOnly, Timeout: time.Minute, Handle: h.Export},
	}
}

func (h *Handlers) Start(ctx context.Context, req *Request) error {
	h.members.AddRecipient(ctx, req.Msg.ChatID)
	return req.Reply(ctx,
		"안녕하세요! 전교조 경기지부 일정 알림 봇입니다.\n도움말을 보시려면 /help 를 입력하세요.\n\n🔔 [알림] 3시간 전, 하루 전, 일주일 전")
}

func (h *Handlers) Help(ctx context.Context, req *Request) error {
	return req.Reply(ctx, helpText)
}

// upcoming returns future events sorted ascending. The 1-based indexes the
// index-taking commands accept refer to positions in this slice.
func (h *Handlers) upcoming(ctx context.Context) ([]calendar.Event, error) {
	return h.cal.ListUpcoming(ctx, h.upcomingLimit)
}

// upcomingAt resolves a 1-based index argument against the current list.
func (h *Handlers) upcomingAt(ctx context.Context, arg string) (calendar.Event, bool, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return calendar.Event{}, false, nil
	}
	items, err := h.upcoming(ctx)
	if err != nil {
		return calendar.Event{}, false, err
	}
	if idx < 1 || idx > len(items) {
		return calendar.Event{}, false, nil
	}
	return items[idx-1], true, nil
}

func (h *Handlers) List(ctx context.Context, req *Request) error {
	items, err := h.upcoming(ctx)
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	if len(items) == 0 {
		return req.Reply(ctx, "❌ 일정이 없습니다.")
	}
	now := h.now().In(h.cal.Location())
	var b strings.Builder
	b.WriteString("📅 등록된 일정:\n")
	for i, ev := range items {
		muteIcon := ""
		if ev.Muted {
			muteIcon = "*"
		}
		fmt.Fprintf(&b, "%d. %s - %s%s\n", i+1, FormatEventTime(ev.Start, now), muteIcon, ev.Summary)
	}
	b.WriteString("\n* : 알림이 울리지 않도록 설정된 일정")
	return req.Reply(ctx, b.String())
}

func (h *Handlers) History30(ctx context.Context, req *Request) error {
	return h.history(ctx, req, 30, "지난 30일 간의 일정")
}

func (h *Handlers) History365(ctx context.Context, req *Request) error {
	return h.history(ctx, req, 365, "지난 1년 간의 일정")
}

func (h *Handlers) history(ctx context.Context, req *Request, days int, label string) error {
	now := h.now().In(h.cal.Location())
	events, err := h.cal.ListRange(ctx, now.AddDate(0, 0, -days), now, 500)
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	past := events[:0:0]
	for _, ev := range events {
		if ev.Start.Before(now) {
			past = append(past, ev)
		}
	}
	if len(past) == 0 {
		return req.Reply(ctx, "🔍 "+label+"이 없습니다.")
	}
	var b strings.Builder
	b.WriteString("📅 " + label + ":\n")
	for i, ev := range past {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, FormatEventTime(ev.Start, now), ev.Summary)
	}
	return req.Reply(ctx, b.String())
}

func (h *Handlers) Add(ctx context.Context, req *Request) error {
	if len(req.Args) < 3 {
		return req.Reply(ctx, "❌ 형식: /add YYMMDD HHMM 내용")
	}
	start, err := ParseDateTime(req.Args[0], req.Args[1], h.cal.Location())
	if err != nil {
		return req.Reply(ctx, "❌ 일정을 추가할 수 없습니다. 올바른 형식인지 확인하세요.\n예) /add 241231 1500 새해맞이 준비")
	}
	summary := strings.TrimSpace(strings.Join(req.Args[2:], " "))
	now := h.now().In(h.cal.Location())
	if start.Before(now) {
		return req.Reply(ctx, "❌ 과거의 일정은 추가할 수 없습니다.")
	}
	if _, err := h.cal.Create(ctx, start, summary, false); err != nil {
		h.log.Warn("event create failed", logx.Err(err))
		return req.Reply(ctx, "❌ 일정을 추가할 수 없습니다. 잠시 후 다시 시도하세요.")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ 새 일정이 추가되었습니다\n일정: %s\n일시: %s",
		summary, FormatEventTime(start, now)))
}

func (h *Handlers) Edit(ctx context.Context, req *Request) error {
	if len(req.Args) < 4 {
		return req.Reply(ctx, "❌ 형식: /edit [번호] [YYMMDD HHMM] [내용]")
	}
	start, err := ParseDateTime(req.Args[1], req.Args[2], h.cal.Location())
	if err != nil {
		return req.Reply(ctx, "❌ 일정을 수정할 수 없습니다. 올바른 형식인지 확인하세요.\n예) /edit 3 241231 1500 새해맞이 준비")
	}
	now := h.now().In(h.cal.Location())
	if start.Before(now) {
		return req.Reply(ctx, "❌ 과거의 일정으로 수정할 수 없습니다.")
	}
	target, ok, err := h.upcomingAt(ctx, req.Args[0])
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	if !ok {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.")
	}
	summary := strings.TrimSpace(strings.Join(req.Args[3:], " "))
	if _, err := h.cal.Update(ctx, target.ID, calendar.Patch{Start: &start, Summary: &summary}); err != nil {
		h.log.Warn("event update failed", logx.String("event_id", target.ID), logx.Err(err))
		return req.Reply(ctx, "❌ 일정을 수정할 수 없습니다. 잠시 후 다시 시도하세요.")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ 일정이 수정되었습니다\n일정: %s\n일시: %s",
		summary, FormatEventTime(start, now)))
}

func (h *Handlers) Delete(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.\n예) /del 1")
	}
	target, ok, err := h.upcomingAt(ctx, req.Args[0])
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	if !ok {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.\n예) /del 1")
	}
	if err := h.cal.Delete(ctx, target.ID); err != nil && !errors.Is(err, calendar.ErrNotFound) {
		h.log.Warn("event delete failed", logx.String("event_id", target.ID), logx.Err(err))
		return req.Reply(ctx, "❌ 일정 삭제 중 오류가 발생했습니다.")
	}
	now := h.now().In(h.cal.Location())
	return req.Reply(ctx, fmt.Sprintf("✅ 일정이 삭제되었습니다\n일정: %s\n일시: %s",
		target.Summary, FormatEventTime(target.Start, now)))
}

func (h *Handlers) Mute(ctx context.Context, req *Request) error {
	return h.setMute(ctx, req, true,
		"✅ 일정이 음소거 처리되었습니다:\n%s",
		"예) /mute 4")
}

func (h *Handlers) Unmute(ctx context.Context, req *Request) error {
	return h.setMute(ctx, req, false,
		"✅ 일정이 음소거 해제되었습니다:\n%s",
		"예) /unmute 4")
}

func (h *Handlers) setMute(ctx context.Context, req *Request, muted bool, okFmt, example string) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.\n"+example)
	}
	target, ok, err := h.upcomingAt(ctx, req.Args[0])
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	if !ok {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.")
	}
	if err := h.cal.SetMuted(ctx, target.ID, muted); err != nil {
		h.log.Warn("mute update failed", logx.String("event_id", target.ID), logx.Err(err))
		return req.Reply(ctx, "❌ 음소거 처리 중 오류가 발생했습니다. 올바른 형식인지 확인하세요.\n"+example)
	}
	return req.Reply(ctx, fmt.Sprintf(okFmt, target.Summary))
}

func (h *Handlers) UserCount(ctx context.Context, req *Request) error {
	n := len(h.members.Snapshot())
	return req.Reply(ctx, fmt.Sprintf("👥 현재 등록된 사용자는 총 %d명입니다.", n))
}

func (h *Handlers) Notice(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		return req.Reply(ctx, "❌ 공지 내용을 입력하세요.\n예) /noti 오늘 오후 3시에 회의가 있습니다.")
	}
	targets := h.members.Snapshot()
	if len(targets) == 0 {
		return req.Reply(ctx, "❌ 알림을 보낼 대상이 없습니다.")
	}
	rep := h.disp.Broadcast(ctx, targets, "📢 알림:\n\n"+text, h.members)
	if len(rep.Removed) > 0 || rep.Failed > 0 {
		return req.Reply(ctx, fmt.Sprintf(
			"⚠️ 차단 등으로 %d개 대상에 메시지 전송 실패. 목록에서 제거했습니다.\n✅ 공지사항이 %d명에게 전송되었습니다.",
			len(rep.Removed)+rep.Failed, rep.Sent))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ 공지사항이 모든 사용자(%d명)에게 전송되었습니다.", rep.Sent))
}

func (h *Handlers) AdminNotice(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		return req.Reply(ctx, "❌ 공지 내용을 입력하세요.\n예) /adminnoti 긴급 관리자 회의가 있습니다.")
	}
	targets := h.members.AdminChatIDs()
	if len(targets) == 0 {
		return req.Reply(ctx, "❌ 등록된 관리자가 없습니다.")
	}
	// Admins are never pruned on delivery failure.
	rep := h.disp.Broadcast(ctx, targets, "📢 관리자용 알림:\n\n"+text, nil)
	failed := rep.Failed + len(rep.Removed)
	if failed > 0 {
		return req.Reply(ctx, fmt.Sprintf("⚠️ 일부 관리자에게 메시지 전송 실패 (%d명). ✅ 전송: %d명", failed, rep.Sent))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ 공지사항이 모든 관리자(%d명)에게 전송되었습니다.", rep.Sent))
}

// confirmSeconds renders the confirmation window for prompt text.
func (h *Handlers) confirmSeconds() int {
	return int(h.confirms.Timeout() / time.Second)
}

func (h *Handlers) DeleteAllPrompt(ctx context.Context, req *Request) error {
	sec := h.confirmSeconds()
	if !h.confirms.Begin(req.Msg.ChatID, confirm.ActionDeleteUpcoming) {
		return req.Reply(ctx, fmt.Sprintf("❌ 이전 확인 작업이 진행 중입니다.\n/ok 를 입력하거나 %d초 후 다시 시도하세요.", sec))
	}
	return req.Reply(ctx, fmt.Sprintf(
		"⚠️ 캘린더의 '앞으로의 이벤트'를 모두 삭제하시겠습니까?\n이 작업은 되돌릴 수 없습니다.\n확인하려면 /ok 를 입력하세요.\n\n⏳ %d초 이내 미응답 시 취소됩니다.", sec))
}

func (h *Handlers) DeleteHistoryPrompt(ctx context.Context, req *Request) error {
	sec := h.confirmSeconds()
	if !h.confirms.Begin(req.Msg.ChatID, confirm.ActionDeleteHistory) {
		return req.Reply(ctx, fmt.Sprintf("❌ 이전 확인 작업이 진행 중입니다.\n/ok 를 입력하거나 %d초 후 다시 시도하세요.", sec))
	}
	return req.Reply(ctx, fmt.Sprintf(
		"⚠️ 지난 일정(최근 1년)을 모두 삭제하시겠습니까?\n이 작업은 되돌릴 수 없습니다.\n확인하려면 /ok 를 입력하세요.\n\n⏳ %d초 이내 미응답 시 취소됩니다.", sec))
}

// Confirm executes whatever destructive action is pending for this chat.
func (h *Handlers) Confirm(ctx context.Context, req *Request) error {
	action, ok := h.confirms.Resolve(req.Msg.ChatID)
	if !ok {
		return req.Reply(ctx, "❌ 확인할 작업이 없습니다.")
	}
	switch action {
	case confirm.ActionDeleteUpcoming:
		items, err := h.upcoming(ctx)
		if err != nil {
			return replyFetchError(ctx, req, err)
		}
		count := h.deleteEvents(ctx, items, func(calendar.Event) bool { return true })
		return req.Reply(ctx, fmt.Sprintf("✅ 앞으로의 일정 %d건을 삭제했습니다.", count))
	case confirm.ActionDeleteHistory:
		now := h.now().In(h.cal.Location())
		events, err := h.cal.ListRange(ctx, now.AddDate(0, 0, -365), now, 500)
		if err != nil {
			return replyFetchError(ctx, req, err)
		}
		count := h.deleteEvents(ctx, events, func(ev calendar.Event) bool { return ev.Start.Before(now) })
		return req.Reply(ctx, fmt.Sprintf("✅ 지난 일정 %d건을 삭제했습니다.", count))
	default:
		return req.Reply(ctx, "❌ 확인할 작업이 없습니다.")
	}
}

// deleteEvents deletes every matching event, counting successes. Individual
// failures are logged and skipped so one bad event cannot abort the sweep.
func (h *Handlers) deleteEvents(ctx context.Context, events []calendar.Event, match func(calendar.Event) bool) int {
	count := 0
	for _, ev := range events {
		if !match(ev) {
			continue
		}
		if err := h.cal.Delete(ctx, ev.ID); err != nil {
			if errors.Is(err, calendar.ErrNotFound) {
				continue
			}
			h.log.Warn("bulk delete failed", logx.String("event_id", ev.ID), logx.Err(err))
			continue
		}
		count++
	}
	return count
}

func replyFetchError(ctx context.Context, req *Request, err error) error {
	req.Logger.Warn("calendar request failed", logx.Err(err))
	return req.Reply(ctx, "❌ 일정 정보를 가져오지 못했습니다. 잠시 후 다시 시도하세요.")
}

const helpText = "📖 일정 알림 봇 사용법\n\n" +
	"1️⃣ 일정 목록 보기\n" +
	"/list\n" +
	"등록된 모든 일정을 확인합니다.\n\n" +
	"2️⃣ 지난 일정 보기\n" +
	"/history\n" +
	"지난 30일 간의 일정을 확인합니다.\n\n" +
	"/history365\n" +
	"지난 1년 간의 일정을 확인합니다.\n\n" +
	"🔔 알림\n" +
	"3시간 전, 하루 전, 일주일 전 알림 발송\n\n" +
	"=======================\n\n" +
	"⚠️ 관리자 전용 기능입니다.\n\n" +
	"3️⃣ 공지사항 보내기\n" +
	"/noti 공지내용\n" +
	"봇 사용자에게 공지사항을 보냅니다.\n" +
	"예) /noti 오늘 오후 3시에 회의가 있습니다.\n\n" +
	"/adminnoti 내용\n" +
	"등록된 관리자에게만 공지를 보냅니다.\n" +
	"예) /adminnoti 오늘 5시에 회의가 있습니다.\n\n" +
	"4️⃣ 일정 추가\n" +
	"/add YYMMDD HHMM 내용\n" +
	"예) /add 241225 0900 성탄절\n\n" +
	"5️⃣ 일정 수정\n" +
	"/edit 번호 YYMMDD HHMM 내용\n" +
	"예) /edit 3 241231 1800 송년회\n\n" +
	"6️⃣ 일정 삭제\n" +
	"/del 번호\n" +
	"예) /del 4\n\n" +
	"7️⃣ 알림 음소거\n" +
	"/mute 번호\n" +
	"해당 일정의 알림을 음소거합니다.\n" +
	"/unmute 번호\n" +
	"해당 일정의 알림 음소거를 해제합니다.\n" +
	"예) /mute 4 (음소거 해제는 /unmute)\n\n" +
	"8️⃣ 일정 내보내기\n" +
	"/export\n" +
	"등록된 일정을 iCalendar 파일로 내보냅니다. (관리자 전용)\n\n" +
	"1️⃣0️⃣ 사용자 수 확인\n" +
	"/user\n" +
	"등록된 사용자 수를 확인합니다. (관리자 전용)\n\n" +
	"🔑 관리자 설정 명령어\n" +
	"· 관리자 추가(개인)\n/admin → 비밀번호 입력 → 이름 입력\n" +
	"· 관리자 추가(단톡)\n/adminroom 비밀번호 방이름\n" +
	"· 명단 확인 : /adminlist, 삭제 : /admindel 번호\n"
