package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/undercover/server/auth"
	"github.com/undercover/server/config"
	"github.com/undercover/server/room"
	"github.com/undercover/server/security"
	"github.com/undercover/server/session"
	"github.com/undercover/server/state"
	"github.com/undercover/server/timer"
	"github.com/undercover/server/wordbank"
)

func testAuthService(t *testing.T) *auth.Service {
	t.Helper()
	openidClient := auth.NewOpenIDClient(auth.OpenIDConfig{
		ProviderBaseURL: "https://fishpi.cn",
		ReturnURL:       "https://undercover.example.com/auth/callback",
		Realm:           "https://undercover.example.com",
	})
	tokens := auth.NewTokenService("test-secret", time.Hour)
	return auth.NewService(openidClient, tokens, nil)
}

func testGameServer(t *testing.T) *GameServer {
	t.Helper()
	cfg := state.RuntimeConfig{
		MinPlayers: 3, MaxPlayers: 8,
		DescribeTimeLimit: 30 * time.Second,
		VoteTimeLimit:     10 * time.Second,
		RoundDelay:        time.Minute,
	}
	rateLimitCfg := security.RateLimitConfig{
		DescribeWindow: time.Second, DescribeMaxActions: 100,
		VoteWindow: time.Second, VoteMaxActions: 100,
		DefaultWindow: time.Second, DefaultMaxActions: 100,
	}
	registry := room.NewRegistry(cfg, nil, wordbank.New("/nonexistent/path.json"), rateLimitCfg, security.WordFilterConfig{}, timer.NewTimerManager(), nil, nil)
	return NewGameServer(config.ServerConfig{}, config.CORSConfig{AllowAllOrigins: true}, 10*time.Second, time.Hour, time.Minute, registry, testAuthService(t), session.NewManager(), nil, nil)
}

func TestWithSessionID_AppendsToExistingQuery(t *testing.T) {
	got, err := withSessionID("https://app.example.com/lobby?ref=home", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://app.example.com/lobby?ref=home&session_id=abc123" {
		t.Errorf("unexpected redirect url: %q", got)
	}
}

func TestHandleLogin_ReturnsSuccessEnvelopeWithCallbackURL(t *testing.T) {
	s := testGameServer(t)
	req := httptest.NewRequest("GET", "/auth/login?callback_url=https://app.example.com/lobby", nil)
	w := httptest.NewRecorder()

	s.handleLogin(w, req)

	var body struct {
		Success  bool   `json:"success"`
		LoginURL string `json:"login_url"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success=true")
	}
	if body.LoginURL == "" {
		t.Fatal("expected a non-empty login_url")
	}
}

func TestHandleValidate_RejectsMissingSessionID(t *testing.T) {
	s := testGameServer(t)
	req := httptest.NewRequest("GET", "/auth/validate", nil)
	w := httptest.NewRecorder()

	s.handleValidate(w, req)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Success {
		t.Fatal("expected success=false for a missing session_id")
	}
	if body.Message == "" {
		t.Fatal("expected a message explaining the failure")
	}
}

func TestHandleRoomsStatus_ReturnsEnvelopeWithEmptyRoomFlagged(t *testing.T) {
	s := testGameServer(t)
	s.registry.GetOrCreate("empty-room", "host")

	req := httptest.NewRequest("GET", "/rooms/status", nil)
	w := httptest.NewRecorder()

	s.handleRoomsStatus(w, req)

	var body struct {
		Success    bool         `json:"success"`
		TotalRooms int          `json:"total_rooms"`
		Rooms      []roomStatus `json:"rooms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success=true")
	}
	if body.TotalRooms != 1 || len(body.Rooms) != 1 {
		t.Fatalf("expected exactly one room reported, got total_rooms=%d rooms=%d", body.TotalRooms, len(body.Rooms))
	}
	got := body.Rooms[0]
	if got.RoomID != "empty-room" || !got.IsEmpty || !got.ShouldBeDeleted {
		t.Errorf("unexpected room status: %+v", got)
	}
}
