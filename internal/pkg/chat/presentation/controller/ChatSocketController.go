package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const defaultReadTimeout = 60 * time.Second

// ChatSocketController handles the websocket endpoint for realtime chat
// traffic: it refuses unverified handshakes before the upgrade, then runs the
// read loop that dispatches protocol frames. Failures of one event reach only
// the offending connection.
type ChatSocketController struct {
	log      logrus.FieldLogger
	verifier identity.Verifier
	registry *realtime.Registry
	rooms    *realtime.Rooms
	metrics  *realtime.Metrics
	upgrader websocket.Upgrader

	sendUC    *usecase.SendMessageUseCase
	persistUC *usecase.PersistMessageUseCase
	markUC    *usecase.MarkAsReadUseCase
	historyUC *usecase.GetHistoryUseCase
	unreadUC  *usecase.GetUnreadCountUseCase

	inflightTimeout time.Duration
	persistTimeout  time.Duration
}

func NewChatSocketController(
	log logrus.FieldLogger,
	verifier identity.Verifier,
	registry *realtime.Registry,
	rooms *realtime.Rooms,
	metrics *realtime.Metrics,
	repo repository.MessageRepository,
	origins []string,
) *ChatSocketController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChatSocketController{
		log:      log,
		verifier: verifier,
		registry: registry,
		rooms:    rooms,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		sendUC:          usecase.NewSendMessageUseCase(repo),
		persistUC:       usecase.NewPersistMessageUseCase(repo),
		markUC:          usecase.NewMarkAsReadUseCase(repo),
		historyUC:       usecase.NewGetHistoryUseCase(repo),
		unreadUC:        usecase.NewGetUnreadCountUseCase(repo),
		inflightTimeout: 5 * time.Second,
		persistTimeout:  10 * time.Second,
	}
}

// originChecker allows the configured origins plus non-browser clients (no
// Origin header). A lone "*" allows everything.
func originChecker(origins []string) func(*http.Request) bool {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		if origin != "" {
			allowed[strings.TrimRight(origin, "/")] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

// Handle upgrades HTTP connections to websocket and processes frames until the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := ctl.verifier.Verify(identity.TokenSource(c.Request))
		if err != nil {
			// Refused before the upgrade: no connection state exists yet.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "credencial inválida ou ausente"})
			return
		}

		ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			ctl.log.WithError(err).Debug("websocket upgrade refused")
			return
		}

		conn := realtime.NewConnection(ident, ws)
		ctl.registry.Attach(conn)
		defer ctl.registry.Detach(conn.ID)

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		ctl.reply(conn, protocol.EventAuthSuccess, protocol.AuthSuccessPayload{
			ParticipantID: ident.ParticipantID,
			Role:          ident.Role,
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					ctl.log.WithError(err).WithField("connection_id", conn.ID).Debug("socket read failed")
				}
				return
			}
			ctl.dispatch(c.Request.Context(), conn, data)
		}
	}
}

// dispatch routes one inbound frame. A panicking handler poisons only this
// event, never the process or the read loop.
func (ctl *ChatSocketController) dispatch(ctx context.Context, conn *realtime.Connection, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			ctl.log.WithFields(logrus.Fields{
				"connection_id": conn.ID,
				"panic":         rec,
			}).Error("event handler panicked")
			ctl.replyError(conn, "", "Erro interno")
		}
	}()

	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		ctl.replyError(conn, protocol.CodeValidation, "payload inválido")
		return
	}

	ctl.metrics.RecordEvent(frame.Event)

	switch frame.Event {
	case protocol.EventJoinConversation:
		ctl.handleJoin(conn, frame)
	case protocol.EventLeaveConversation:
		ctl.handleLeave(conn, frame)
	case protocol.EventSendMessage:
		ctl.handleSendMessage(ctx, conn, frame)
	case protocol.EventMarkAsRead:
		ctl.handleMarkAsRead(ctx, conn, frame)
	case protocol.EventGetConversationHistory:
		ctl.handleGetHistory(ctx, conn, frame)
	case protocol.EventGetUnreadCount:
		ctl.handleGetUnreadCount(ctx, conn, frame)
	case protocol.EventUserTyping:
		ctl.handleTyping(conn, frame)
	default:
		ctl.replyError(conn, protocol.CodeValidation, fmt.Sprintf("evento desconhecido: %s", frame.Event))
	}
}

func (ctl *ChatSocketController) handleJoin(conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.ConversationRef
	if err := frame.Decode(&p); err != nil || p.ConversationID == "" {
		ctl.replyError(conn, protocol.CodeValidation, "ID de conversação não fornecido")
		return
	}

	ctl.rooms.Join(p.ConversationID, conn)

	ctl.reply(conn, protocol.EventJoinedConversation, protocol.JoinedConversationPayload{
		ConversationID: p.ConversationID,
		Timestamp:      protocol.Now(),
	})

	ctl.log.WithFields(logrus.Fields{
		"participant_id":  conn.Participant.ParticipantID,
		"conversation_id": p.ConversationID,
	}).Info("participant joined conversation")
}

// handleLeave is silent on bad input: leaving a room you never joined needs
// no error traffic.
func (ctl *ChatSocketController) handleLeave(conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.ConversationRef
	if err := frame.Decode(&p); err != nil || p.ConversationID == "" {
		return
	}

	ctl.rooms.Leave(p.ConversationID, conn.ID)

	ctl.log.WithFields(logrus.Fields{
		"participant_id":  conn.Participant.ParticipantID,
		"conversation_id": p.ConversationID,
	}).Info("participant left conversation")
}

func (ctl *ChatSocketController) handleSendMessage(ctx context.Context, conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.SendMessagePayload
	if err := frame.Decode(&p); err != nil {
		ctl.replyError(conn, protocol.CodeValidation, "Dados incompletos")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	msg, err := ctl.sendUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: p.ConversationID,
		SenderID:       conn.Participant.ParticipantID,
		SenderType:     senderType(conn.Participant),
		Content:        p.Content,
		Encrypted:      p.Encrypted,
		AttachmentURL:  p.AttachmentURL,
		AttachmentType: p.AttachmentType,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			ctl.replyError(conn, protocol.CodeValidation, "Dados incompletos")
			return
		}
		ctl.replyError(conn, protocol.CodePersistence, "Erro ao processar mensagem")
		return
	}

	payload, err := protocol.Encode(protocol.EventNewMessage, protocol.NewWireMessage(*msg))
	if err != nil {
		ctl.replyError(conn, "", "Erro interno")
		return
	}

	// Recipients first, the sender's own copy included; storage happens after
	// and never revokes what the room already saw.
	ctl.rooms.Broadcast(msg.ConversationID, payload, "")
	ctl.persistAsync(*msg)

	ctl.log.WithFields(logrus.Fields{
		"conversation_id": msg.ConversationID,
		"participant_id":  conn.Participant.ParticipantID,
	}).Info("message sent")
}

// persistAsync stores the already-broadcast message in the background.
// Failure is logged and swallowed: delivery already happened.
func (ctl *ChatSocketController) persistAsync(msg chat.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ctl.persistTimeout)
		defer cancel()

		if _, err := ctl.persistUC.Execute(ctx, usecase.PersistMessageInput{Message: msg}); err != nil {
			ctl.log.WithError(err).WithFields(logrus.Fields{
				"conversation_id": msg.ConversationID,
				"provisional_id":  msg.ID,
			}).Error("failed to store message")
		}
	}()
}

func (ctl *ChatSocketController) handleMarkAsRead(ctx context.Context, conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.MarkAsReadPayload
	if err := frame.Decode(&p); err != nil || len(p.MessageIDs) == 0 {
		ctl.replyError(conn, protocol.CodeValidation, "IDs de mensagens não fornecidos")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	marked, err := ctl.markUC.Execute(ctx, usecase.MarkAsReadInput{MessageIDs: p.MessageIDs})
	if err != nil {
		ctl.replyError(conn, protocol.CodePersistence, fmt.Sprintf("Erro ao marcar mensagens: %v", err))
		return
	}

	// The receipt goes to the room only when the client says which room, and
	// echoes the requested ids, not the marked subset.
	if p.ConversationID != "" {
		if payload, err := protocol.Encode(protocol.EventMessagesRead, protocol.MessagesReadPayload{
			MessageIDs: p.MessageIDs,
			UserID:     conn.Participant.ParticipantID,
			Timestamp:  protocol.Now(),
		}); err == nil {
			ctl.rooms.Broadcast(p.ConversationID, payload, conn.ID)
		}
	}

	ctl.log.WithFields(logrus.Fields{
		"participant_id": conn.Participant.ParticipantID,
		"requested":      len(p.MessageIDs),
		"marked":         len(marked),
	}).Debug("messages marked as read")
}

func (ctl *ChatSocketController) handleGetHistory(ctx context.Context, conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.GetHistoryPayload
	if err := frame.Decode(&p); err != nil || p.ConversationID == "" {
		ctl.replyError(conn, protocol.CodeValidation, "ID de conversação não fornecido")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	page, err := ctl.historyUC.Execute(ctx, usecase.GetHistoryInput{
		ConversationID: p.ConversationID,
		Limit:          p.Limit,
		Offset:         p.Offset,
	})
	if err != nil {
		ctl.replyError(conn, protocol.CodePersistence, fmt.Sprintf("Erro ao obter histórico: %v", err))
		return
	}

	ctl.reply(conn, protocol.EventConversationHistory, protocol.ConversationHistoryPayload{
		ConversationID: page.ConversationID,
		Messages:       protocol.NewWireMessages(page.Messages),
		Total:          page.Total,
		HasMore:        page.HasMore,
	})
}

func (ctl *ChatSocketController) handleGetUnreadCount(ctx context.Context, conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.GetUnreadCountPayload
	if err := frame.Decode(&p); err != nil {
		ctl.replyError(conn, protocol.CodeValidation, "payload inválido")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	report, err := ctl.unreadUC.Execute(ctx, usecase.GetUnreadCountInput{
		ReaderID:       conn.Participant.ParticipantID,
		ReaderType:     senderType(conn.Participant),
		ConversationID: p.ConversationID,
	})
	if err != nil {
		ctl.replyError(conn, protocol.CodePersistence, fmt.Sprintf("Erro ao obter contagem: %v", err))
		return
	}

	if p.ConversationID != "" {
		ctl.reply(conn, protocol.EventUnreadCount, protocol.UnreadCountPayload{
			ConversationID: report.ConversationID,
			Count:          report.Count,
		})
		return
	}
	ctl.reply(conn, protocol.EventUnreadCounts, protocol.UnreadCountsPayload{
		Total:          report.Total,
		ByConversation: report.ByConversation,
	})
}

// handleTyping is fire-and-forget: no ack, no error frames, nothing stored.
func (ctl *ChatSocketController) handleTyping(conn *realtime.Connection, frame protocol.Frame) {
	var p protocol.ConversationRef
	if err := frame.Decode(&p); err != nil || p.ConversationID == "" {
		return
	}

	payload, err := protocol.Encode(protocol.EventTyping, protocol.TypingPayload{
		UserID:         conn.Participant.ParticipantID,
		ConversationID: p.ConversationID,
		Timestamp:      protocol.Now(),
	})
	if err != nil {
		return
	}
	ctl.rooms.Broadcast(p.ConversationID, payload, conn.ID)
}

func (ctl *ChatSocketController) reply(conn *realtime.Connection, event string, payload any) {
	b, err := protocol.Encode(event, payload)
	if err != nil {
		ctl.log.WithError(err).WithField("event", event).Error("failed to encode frame")
		return
	}
	_ = conn.Send(b)
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code, message string) {
	ctl.reply(conn, protocol.EventError, protocol.ErrorPayload{Message: message, Code: code})
}

func senderType(p identity.Identity) string {
	if p.IsPatient() {
		return chat.SenderTypePatient
	}
	return chat.SenderTypeStaff
}
