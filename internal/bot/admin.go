package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// adminState tracks the /admin registration conversation for one private
// chat.
type adminState int

const (
	stateNone adminState = iota
	stateAwaitingPassword
	stateAwaitingName
)

func (h *Handlers) flowState(chatID int64) adminState {
	h.flowMu.Lock()
	defer h.flowMu.Unlock()
	return h.flow[chatID]
}

func (h *Handlers) setFlowState(chatID int64, s adminState) {
	h.flowMu.Lock()
	if s == stateNone {
		delete(h.flow, chatID)
	} else {
		h.flow[chatID] = s
	}
	h.flowMu.Unlock()
}

// AdminRegister starts the private-chat admin registration conversation.
func (h *Handlers) AdminRegister(ctx context.Context, req *Request) error {
	if req.Msg.IsGroup {
		return req.Reply(ctx,
			"❌ 개인 채팅에서만 사용 가능한 명령어입니다.\n단톡방에서는 [/adminroom 비밀번호 방이름] 을 사용해 방 전체에 관리 권한을 부여하세요.")
	}
	if h.members.IsAdmin(req.Msg.ChatID) {
		return req.Reply(ctx, "✅ 이미 관리자로 등록된 계정입니다.")
	}
	if h.password() == "" {
		return req.Reply(ctx, "❌ 관리자 등록이 비활성화되어 있습니다.")
	}
	h.setFlowState(req.Msg.ChatID, stateAwaitingPassword)
	return req.Reply(ctx, "🔒 관리자 비밀번호를 입력하세요:")
}

// AdminRoom grants admin rights to a whole group chat in one step.
func (h *Handlers) AdminRoom(ctx context.Context, req *Request) error {
	if !req.Msg.IsGroup {
		return req.Reply(ctx, "❌ 이 명령어는 단톡방에서만 사용할 수 있습니다.")
	}
	if len(req.Args) < 2 {
		return req.Reply(ctx, "❌ 명령어 형식이 올바르지 않습니다.\n예) /adminroom 비밀번호 방이름")
	}
	password := h.password()
	if password == "" || req.Args[0] != password {
		return req.Reply(ctx, "❌ 비밀번호가 올바르지 않습니다.")
	}
	roomName := strings.Join(req.Args[1:], " ")
	if !h.members.AddAdmin(ctx, roomName+"(단톡방)", req.Msg.ChatID) {
		return req.Reply(ctx, "✅ 이미 단톡방에 관리 권한이 부여되어 있습니다.")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ '%s' 단톡방에 관리 권한을 부여하였습니다.", roomName))
}

func (h *Handlers) AdminList(ctx context.Context, req *Request) error {
	admins := h.members.Admins()
	if len(admins) == 0 {
		return req.Reply(ctx, "❌ 등록된 관리자가 없습니다.")
	}
	var b strings.Builder
	b.WriteString("📋 관리자 목록:\n")
	for i, a := range admins {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a.Name)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (h *Handlers) AdminDelete(ctx context.Context, req *Request) error {
	if len(h.members.Admins()) == 0 {
		return req.Reply(ctx, "❌ 삭제할 관리자가 없습니다.")
	}
	if len(req.Args) < 1 {
		return req.Reply(ctx, "❌ 삭제할 번호를 올바르게 입력하세요.\n예) /admindel 1")
	}
	idx, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return req.Reply(ctx, "❌ 삭제할 번호를 올바르게 입력하세요.\n예) /admindel 1")
	}
	removed, ok := h.members.RemoveAdminAt(ctx, idx-1)
	if !ok {
		return req.Reply(ctx, "❌ 유효한 번호를 입력하세요.")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ %s님이 관리자에서 삭제되었습니다.", removed.Name))
}

// Fallback handles plain text: it advances the admin registration
// conversation when one is active, otherwise shows a short usage hint in
// private chats and stays silent in groups.
func (h *Handlers) Fallback(ctx context.Context, req *Request) error {
	chatID := req.Msg.ChatID
	text := strings.TrimSpace(req.Msg.Text)

	switch h.flowState(chatID) {
	case stateAwaitingPassword:
		if password := h.password(); password != "" && text == password {
			h.setFlowState(chatID, stateAwaitingName)
			return req.Reply(ctx, "✅ 비밀번호가 확인되었습니다. 이름을 입력해주세요:")
		}
		h.setFlowState(chatID, stateNone)
		return req.Reply(ctx, "❌ 비밀번호가 올바르지 않습니다.")
	case stateAwaitingName:
		h.setFlowState(chatID, stateNone)
		h.members.AddAdmin(ctx, text, chatID)
		return req.Reply(ctx, fmt.Sprintf("✅ %s님이 관리자로 등록되었습니다.", text))
	}

	if req.Msg.IsGroup {
		return nil
	}
	return req.Reply(ctx, fallbackText)
}

const fallbackText = "⚠️ 봇을 이용하려면 명령어를 입력해야 합니다.\n" +
	"=======================\n\n" +
	"🔔 일정 알림 봇 사용법\n\n" +
	"1️⃣ 일정 목록 보기\n" +
	"/list\n" +
	"등록된 모든 일정을 확인합니다.\n\n" +
	"2️⃣ 지난 일정 보기\n" +
	"/history\n" +
	"지난 30일 간의 일정을 확인합니다.\n\n" +
	"📖 더 많은 기능은 /help를 참고하세요."
