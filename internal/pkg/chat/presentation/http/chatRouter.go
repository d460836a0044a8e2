package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	qport "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/queue/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/keys"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/controller"
)

// Deps bundles the shared infrastructure the chat endpoints are built on.
// The composition root fills it once and hands it to both registration
// functions.
type Deps struct {
	Log      logrus.FieldLogger
	Verifier identity.Verifier
	Repo     repository.MessageRepository
	Queue    qport.Client
	Registry *realtime.Registry
	Rooms    *realtime.Rooms
	Metrics  *realtime.Metrics
	Keys     keys.Directory
	Origins  []string
}

// RegisterRoutes registers chat-related REST endpoints under the given router
// group. It constructs per-endpoint controllers and binds them directly to
// routes. Every route requires a verified identity.
func RegisterRoutes(g *gin.RouterGroup, deps Deps) {
	sendMsgCtl := controller.NewSendMessageController(deps.Repo, deps.Queue, deps.Rooms)
	historyCtl := controller.NewGetHistoryController(deps.Repo)
	unreadCtl := controller.NewUnreadController(deps.Repo)
	registerKeyCtl := controller.NewRegisterKeyController(deps.Keys)
	getKeyCtl := controller.NewGetKeyController(deps.Keys)

	chat := g.Group("/chat")
	chat.Use(identity.RequireIdentity(deps.Verifier))

	// POST /api/v1/chat/messages -> queue a message for delivery and storage
	chat.POST("/messages", sendMsgCtl.Handle())

	// GET /api/v1/chat/conversations/:conversationID/messages -> history page
	chat.GET("/conversations/:conversationID/messages", historyCtl.Handle())

	// GET /api/v1/chat/unread -> unread counters for the authenticated caller
	chat.GET("/unread", unreadCtl.Handle())

	// POST /api/v1/chat/keys -> publish a participant public key
	chat.POST("/keys", registerKeyCtl.Handle())

	// GET /api/v1/chat/keys/:participantID -> fetch a participant public key
	chat.GET("/keys/:participantID", getKeyCtl.Handle())
}

// RegisterSocket mounts the realtime websocket endpoint on the engine root.
// Authentication happens inside the handler before the protocol upgrade, so
// the route carries no middleware.
func RegisterSocket(r *gin.Engine, deps Deps) {
	socketCtl := controller.NewChatSocketController(deps.Log, deps.Verifier, deps.Registry, deps.Rooms, deps.Metrics, deps.Repo, deps.Origins)

	// GET /ws/chat -> websocket endpoint for realtime chat
	r.GET("/ws/chat", socketCtl.Handle())
}
