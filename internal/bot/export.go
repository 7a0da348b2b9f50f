package bot

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	kit "github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Export sends the upcoming schedule as an iCalendar attachment.
func (h *Handlers) Export(ctx context.Context, req *Request) error {
	items, err := h.upcoming(ctx)
	if err != nil {
		return replyFetchError(ctx, req, err)
	}
	if len(items) == 0 {
		return req.Reply(ctx, "❌ 내보낼 일정이 없습니다.")
	}

	now := h.now()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//KTU-GG-Alert//schedule//KO")
	for _, ev := range items {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.Start.Add(time.Hour))
		ve.SetSummary(ev.Summary)
	}

	name := fmt.Sprintf("schedule-%s.ics", now.In(h.cal.Location()).Format("20060102"))
	err = req.Adapter.SendDocument(ctx, kit.ChatTarget{ChatID: req.Msg.ChatID},
		name, []byte(cal.Serialize()), fmt.Sprintf("📅 일정 %d건", len(items)))
	if err != nil {
		h.log.Warn("export send failed", logx.Err(err))
		return req.Reply(ctx, "❌ 일정 파일 전송에 실패했습니다.")
	}
	return nil
}
