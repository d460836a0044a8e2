package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/adapter"
)

func testDeps(repo *adapter.MemoryMessageRepository, verifier identity.Verifier) Deps {
	log := logrus.New()
	log.SetOutput(io.Discard)
	rooms := realtime.NewRooms(nil)
	return Deps{
		Log:      log,
		Verifier: verifier,
		Repo:     repo,
		Registry: realtime.NewRegistry(rooms, nil, log),
		Rooms:    rooms,
		Origins:  []string{"*"},
	}
}

func newTestEngine(deps Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterSocket(r, deps)
	RegisterRoutes(r.Group("/api/v1"), deps)
	return r
}

func TestChatRoutesRequireBearerToken(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret", "ceriv")
	r := newTestEngine(testDeps(adapter.NewMemoryMessageRepository(), verifier))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/conv-1/messages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/conv-1/messages", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", w.Code)
	}
}

func TestChatRoutesServeMintedToken(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret", "ceriv")
	repo := adapter.NewMemoryMessageRepository()
	patientID := "patient-1"
	if _, err := repo.Save(context.Background(), chat.Message{
		ConversationID: "conv-1",
		PatientID:      &patientID,
		SenderType:     chat.SenderTypePatient,
		Content:        "oi",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	token, err := verifier.GenerateToken("staff-1", identity.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	r := newTestEngine(testDeps(repo, verifier))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/conv-1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d (%s)", w.Code, w.Body)
	}
	var resp struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("history returned %d messages, want 1", len(resp.Messages))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/unread", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unread status = %d (%s)", w.Code, w.Body)
	}
}

func TestSocketRouteRefusesWithoutToken(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret", "ceriv")
	r := newTestEngine(testDeps(adapter.NewMemoryMessageRepository(), verifier))

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
