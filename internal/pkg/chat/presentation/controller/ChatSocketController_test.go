package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/adapter"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/protocol"
)

func newSocketController(repo repository.MessageRepository) (*ChatSocketController, *realtime.Rooms) {
	rooms := realtime.NewRooms(nil)
	registry := realtime.NewRegistry(rooms, nil, quietLog())
	ctl := NewChatSocketController(quietLog(), nil, registry, rooms, nil, repo, []string{"*"})
	return ctl, rooms
}

func inFrame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	b, err := protocol.Encode(event, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return b
}

func assertErrorFrame(t *testing.T, sink *fakeSink, want string) {
	t.Helper()
	f := sink.next(t)
	if f.Event != protocol.EventError {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventError)
	}
	var p protocol.ErrorPayload
	if err := f.Decode(&p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.Message != want {
		t.Fatalf("error = %q, want %q", p.Message, want)
	}
}

// waitForStored blocks until the repository holds n messages; storage on the
// socket path happens in a background goroutine after the broadcast.
func waitForStored(t *testing.T, repo *adapter.MemoryMessageRepository, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if repo.Len() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("repository has %d messages, want %d", repo.Len(), n)
}

func TestSocketJoinConversation(t *testing.T) {
	ctl, rooms := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("patient-1", identity.RolePatient)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventJoinConversation, protocol.ConversationRef{ConversationID: "conv-1"}))

	if !rooms.Contains("conv-1", conn.ID) {
		t.Fatal("connection not in room after join")
	}
	f := sink.next(t)
	if f.Event != protocol.EventJoinedConversation {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventJoinedConversation)
	}
	var ack protocol.JoinedConversationPayload
	if err := f.Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.ConversationID != "conv-1" || ack.Timestamp == "" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestSocketJoinRequiresConversationID(t *testing.T) {
	ctl, _ := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("patient-1", identity.RolePatient)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventJoinConversation, protocol.ConversationRef{}))

	assertErrorFrame(t, sink, "ID de conversação não fornecido")
}

func TestSocketLeaveConversationIsSilent(t *testing.T) {
	ctl, rooms := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("patient-1", identity.RolePatient)
	rooms.Join("conv-1", conn)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventLeaveConversation, protocol.ConversationRef{ConversationID: "conv-1"}))
	if rooms.Contains("conv-1", conn.ID) {
		t.Fatal("connection still in room after leave")
	}

	// Bad input produces no error traffic either.
	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventLeaveConversation, protocol.ConversationRef{}))
	sink.none(t)
}

func TestSocketSendMessageReachesRoomAndStore(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	ctl, rooms := newSocketController(repo)

	sender, senderSink := socketConn("patient-1", identity.RolePatient)
	peer, peerSink := socketConn("staff-1", identity.RoleStaff)
	rooms.Join("conv-1", sender)
	rooms.Join("conv-1", peer)

	ctl.dispatch(context.Background(), sender, inFrame(t, protocol.EventSendMessage, protocol.SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "Olá, doutor",
	}))

	// The sender's own sockets receive the broadcast too.
	for _, sink := range []*fakeSink{senderSink, peerSink} {
		f := sink.next(t)
		if f.Event != protocol.EventNewMessage {
			t.Fatalf("event = %q, want %q", f.Event, protocol.EventNewMessage)
		}
		var msg protocol.WireMessage
		if err := f.Decode(&msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Content != "Olá, doutor" || msg.SenderType != chat.SenderTypePatient || !msg.Encrypted {
			t.Fatalf("message = %+v", msg)
		}
		if msg.PatientID == nil || *msg.PatientID != "patient-1" || msg.UserID != nil {
			t.Fatalf("sender columns = %+v", msg)
		}
		if msg.ID == "" {
			t.Fatal("message broadcast without provisional id")
		}
	}

	waitForStored(t, repo, 1)
}

func TestSocketStaffSendCarriesPatientParty(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "oi"})

	ctl, rooms := newSocketController(repo)
	staff, staffSink := socketConn("staff-1", identity.RoleStaff)
	rooms.Join("conv-1", staff)

	ctl.dispatch(context.Background(), staff, inFrame(t, protocol.EventSendMessage, protocol.SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "tudo bem?",
	}))

	f := staffSink.next(t)
	var msg protocol.WireMessage
	if err := f.Decode(&msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.UserID == nil || *msg.UserID != "staff-1" {
		t.Fatalf("user_id = %v", msg.UserID)
	}
	if msg.PatientID == nil || *msg.PatientID != "patient-1" {
		t.Fatalf("patient_id = %v, want the conversation's patient party", msg.PatientID)
	}
	waitForStored(t, repo, 2)
}

func TestSocketSendMessageValidation(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	ctl, rooms := newSocketController(repo)
	sender, senderSink := socketConn("patient-1", identity.RolePatient)
	rooms.Join("conv-1", sender)

	ctl.dispatch(context.Background(), sender, inFrame(t, protocol.EventSendMessage, protocol.SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "   ",
	}))

	assertErrorFrame(t, senderSink, "Dados incompletos")
	if repo.Len() != 0 {
		t.Errorf("invalid message stored: %d rows", repo.Len())
	}
}

func TestSocketTypingExcludesSender(t *testing.T) {
	ctl, rooms := newSocketController(adapter.NewMemoryMessageRepository())
	sender, senderSink := socketConn("patient-1", identity.RolePatient)
	peer, peerSink := socketConn("staff-1", identity.RoleStaff)
	rooms.Join("conv-1", sender)
	rooms.Join("conv-1", peer)

	ctl.dispatch(context.Background(), sender, inFrame(t, protocol.EventUserTyping, protocol.ConversationRef{ConversationID: "conv-1"}))

	f := peerSink.next(t)
	if f.Event != protocol.EventTyping {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventTyping)
	}
	var p protocol.TypingPayload
	if err := f.Decode(&p); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	if p.UserID != "patient-1" || p.ConversationID != "conv-1" || p.Timestamp == "" {
		t.Fatalf("typing = %+v", p)
	}
	senderSink.none(t)

	// Missing conversation id is dropped without error frames.
	ctl.dispatch(context.Background(), sender, inFrame(t, protocol.EventUserTyping, protocol.ConversationRef{}))
	senderSink.none(t)
	peerSink.none(t)
}

func TestSocketMarkAsReadBroadcastsReceipt(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	id1 := seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "a"})
	id2 := seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "b"})

	ctl, rooms := newSocketController(repo)
	reader, readerSink := socketConn("staff-1", identity.RoleStaff)
	peer, peerSink := socketConn("patient-1", identity.RolePatient)
	rooms.Join("conv-1", reader)
	rooms.Join("conv-1", peer)

	ctl.dispatch(context.Background(), reader, inFrame(t, protocol.EventMarkAsRead, protocol.MarkAsReadPayload{
		MessageIDs:     []string{id1, id2, "ghost"},
		ConversationID: "conv-1",
	}))

	f := peerSink.next(t)
	if f.Event != protocol.EventMessagesRead {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventMessagesRead)
	}
	var receipt protocol.MessagesReadPayload
	if err := f.Decode(&receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	// The receipt echoes the request, unknown ids included, and names the
	// reader; the reader's own socket gets nothing.
	if receipt.UserID != "staff-1" || len(receipt.MessageIDs) != 3 || receipt.Timestamp == "" {
		t.Fatalf("receipt = %+v", receipt)
	}
	readerSink.none(t)

	page, err := repo.History(context.Background(), "conv-1", 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, m := range page {
		if !m.Read || m.ReadAt == nil {
			t.Errorf("message %s not marked read", m.ID)
		}
	}
}

func TestSocketMarkAsReadValidation(t *testing.T) {
	ctl, _ := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("staff-1", identity.RoleStaff)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventMarkAsRead, protocol.MarkAsReadPayload{}))

	assertErrorFrame(t, sink, "IDs de mensagens não fornecidos")
}

func TestSocketMarkAsReadWithoutConversationSkipsReceipt(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	id := seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "a"})

	ctl, rooms := newSocketController(repo)
	reader, _ := socketConn("staff-1", identity.RoleStaff)
	peer, peerSink := socketConn("patient-1", identity.RolePatient)
	rooms.Join("conv-1", reader)
	rooms.Join("conv-1", peer)

	ctl.dispatch(context.Background(), reader, inFrame(t, protocol.EventMarkAsRead, protocol.MarkAsReadPayload{MessageIDs: []string{id}}))

	peerSink.none(t)
	first, err := repo.FirstMessage(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if !first.Read {
		t.Error("message not marked read")
	}
}

func TestSocketGetHistory(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	base := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedMessage(t, repo, chat.Message{
			ConversationID: "conv-1",
			PatientID:      strptr("patient-1"),
			SenderType:     chat.SenderTypePatient,
			Content:        fmt.Sprintf("msg-%d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
	}

	ctl, _ := newSocketController(repo)
	conn, sink := socketConn("staff-1", identity.RoleStaff)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventGetConversationHistory, protocol.GetHistoryPayload{ConversationID: "conv-1", Limit: 2}))

	f := sink.next(t)
	if f.Event != protocol.EventConversationHistory {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventConversationHistory)
	}
	var page protocol.ConversationHistoryPayload
	if err := f.Decode(&page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if page.ConversationID != "conv-1" || page.Total != 2 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}
	if page.Messages[0].Content != "msg-2" || page.Messages[1].Content != "msg-1" {
		t.Fatalf("page order: %+v", page.Messages)
	}

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventGetConversationHistory, protocol.GetHistoryPayload{}))
	assertErrorFrame(t, sink, "ID de conversação não fornecido")
}

func TestSocketGetUnreadCount(t *testing.T) {
	repo := adapter.NewMemoryMessageRepository()
	seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "a"})
	seedMessage(t, repo, chat.Message{ConversationID: "conv-1", PatientID: strptr("patient-1"), SenderType: chat.SenderTypePatient, Content: "b"})
	seedMessage(t, repo, chat.Message{ConversationID: "conv-2", PatientID: strptr("patient-2"), SenderType: chat.SenderTypePatient, Content: "c"})

	ctl, _ := newSocketController(repo)
	conn, sink := socketConn("staff-1", identity.RoleStaff)

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventGetUnreadCount, protocol.GetUnreadCountPayload{ConversationID: "conv-1"}))
	f := sink.next(t)
	if f.Event != protocol.EventUnreadCount {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventUnreadCount)
	}
	var scoped protocol.UnreadCountPayload
	if err := f.Decode(&scoped); err != nil {
		t.Fatalf("decode scoped count: %v", err)
	}
	if scoped.ConversationID != "conv-1" || scoped.Count != 2 {
		t.Fatalf("scoped = %+v", scoped)
	}

	ctl.dispatch(context.Background(), conn, inFrame(t, protocol.EventGetUnreadCount, protocol.GetUnreadCountPayload{}))
	f = sink.next(t)
	if f.Event != protocol.EventUnreadCounts {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventUnreadCounts)
	}
	var all protocol.UnreadCountsPayload
	if err := f.Decode(&all); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if all.Total != 3 || all.ByConversation["conv-1"] != 2 || all.ByConversation["conv-2"] != 1 {
		t.Fatalf("breakdown = %+v", all)
	}
}

func TestSocketUnknownEvent(t *testing.T) {
	ctl, _ := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("patient-1", identity.RolePatient)

	ctl.dispatch(context.Background(), conn, []byte(`{"event":"bogus"}`))

	assertErrorFrame(t, sink, "evento desconhecido: bogus")
}

func TestSocketMalformedFrame(t *testing.T) {
	ctl, _ := newSocketController(adapter.NewMemoryMessageRepository())
	conn, sink := socketConn("patient-1", identity.RolePatient)

	ctl.dispatch(context.Background(), conn, []byte(`{"event":`))

	assertErrorFrame(t, sink, "payload inválido")
}

func TestSocketHandleRejectsUnverifiedHandshake(t *testing.T) {
	rooms := realtime.NewRooms(nil)
	registry := realtime.NewRegistry(rooms, nil, quietLog())
	ctl := NewChatSocketController(quietLog(), staticVerifier{err: errors.New("bad token")}, registry, rooms, nil, adapter.NewMemoryMessageRepository(), []string{"*"})

	r := gin.New()
	r.GET("/ws/chat", ctl.Handle())

	w := restRequest(t, r, http.MethodGet, "/ws/chat", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	assertError(t, w, "credencial inválida ou ausente")
	if registry.Len() != 0 {
		t.Fatalf("registry has %d connections after refused handshake", registry.Len())
	}
}

func TestSocketHandshakeLifecycle(t *testing.T) {
	rooms := realtime.NewRooms(nil)
	registry := realtime.NewRegistry(rooms, nil, quietLog())
	ident := identity.Identity{ParticipantID: "patient-1", Role: identity.RolePatient}
	ctl := NewChatSocketController(quietLog(), staticVerifier{ident: ident}, registry, rooms, nil, adapter.NewMemoryMessageRepository(), []string{"*"})

	r := gin.New()
	r.GET("/ws/chat", ctl.Handle())
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=anything"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var f protocol.Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read auth frame: %v", err)
	}
	if f.Event != protocol.EventAuthSuccess {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventAuthSuccess)
	}
	var auth protocol.AuthSuccessPayload
	if err := f.Decode(&auth); err != nil {
		t.Fatalf("decode auth payload: %v", err)
	}
	if auth.ParticipantID != "patient-1" || auth.Role != identity.RolePatient {
		t.Fatalf("auth payload = %+v", auth)
	}
	if registry.Len() != 1 {
		t.Fatalf("registry has %d connections, want 1", registry.Len())
	}

	// Frames travel through the real read loop.
	if err := ws.WriteMessage(websocket.TextMessage, inFrame(t, protocol.EventJoinConversation, protocol.ConversationRef{ConversationID: "conv-1"})); err != nil {
		t.Fatalf("write join: %v", err)
	}
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read join ack: %v", err)
	}
	if f.Event != protocol.EventJoinedConversation {
		t.Fatalf("event = %q, want %q", f.Event, protocol.EventJoinedConversation)
	}

	// Disconnect detaches the connection and empties its rooms.
	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for registry.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Len() != 0 {
		t.Fatal("connection not detached after close")
	}
	if rooms.MemberCount("conv-1") != 0 {
		t.Fatal("room membership survived disconnect")
	}
}
