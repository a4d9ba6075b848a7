package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/undercover/server/apperr"
	"github.com/undercover/server/auth"
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/config"
	"github.com/undercover/server/models"
	"github.com/undercover/server/monitor"
	"github.com/undercover/server/network"
	"github.com/undercover/server/room"
	"github.com/undercover/server/session"
	"github.com/undercover/server/state"
	"go.uber.org/zap"
)

// maxConnectionsPerIP caps how many live sockets a single remote address may
// hold open at once, independent of how many distinct accounts it logs in as.
const maxConnectionsPerIP = 3

// maxInboundMessagesPerSecond throttles one connection's frame rate; a
// client that exceeds it gets an error frame instead of flooding a room.
const maxInboundMessagesPerSecond = 100

// GameServer is the HTTP/WebSocket boundary: OpenID login, session
// token issuance, and the per-connection frame dispatch loop that turns
// network.Frame traffic into state.Command submissions against a room.Engine.
type GameServer struct {
	cfg        config.ServerConfig
	cors       config.CORSConfig
	heartbeat  time.Duration
	maxIdle    time.Duration
	roundDelay time.Duration

	upgrader websocket.Upgrader
	registry *room.Registry
	sessions *session.Manager
	auth     *auth.Service
	metrics  *monitor.Monitor
	log      *zap.SugaredLogger
}

func NewGameServer(cfg config.ServerConfig, cors config.CORSConfig, heartbeat, maxIdle, roundDelay time.Duration, registry *room.Registry, authSvc *auth.Service, sessions *session.Manager, metrics *monitor.Monitor, log *zap.SugaredLogger) *GameServer {
	s := &GameServer{
		cfg:        cfg,
		cors:       cors,
		heartbeat:  heartbeat,
		maxIdle:    maxIdle,
		roundDelay: roundDelay,
		registry:   registry,
		sessions:   sessions,
		auth:       authSvc,
		metrics:    metrics,
		log:        log,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if s.cors.AllowAllOrigins {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cors.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *GameServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.cors.AllowAllOrigins {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range s.cors.AllowedOrigins {
				if origin == allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start registers every handler and blocks serving HTTP + WebSocket traffic
// on a single listener, the gorilla/websocket idiom of sharing one mux
// between plain HTTP routes and the "/ws" upgrade route.
func (s *GameServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/callback", s.handleCallback)
	mux.HandleFunc("/auth/validate", s.handleValidate)
	mux.HandleFunc("/rooms/status", s.handleRoomsStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.HTTPPort)
	s.log.Infof("game server listening on %s", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(mux))
}

func (s *GameServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "undercover game server")
}

func (s *GameServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	callbackURL := r.URL.Query().Get("callback_url")
	loginURL, err := s.auth.LoginURL(callbackURL)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"login_url": loginURL,
	})
}

// callbackPageTmpl is the landing page the OpenID provider redirects back to:
// it has no session store of its own, so it stashes session_id in the
// browser's localStorage before bouncing on to the caller's callback_url.
var callbackPageTmpl = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Signing in…</title></head>
<body>
<script>
localStorage.setItem("session_id", {{.SessionID}});
window.location.replace({{.RedirectURL}});
</script>
</body></html>`))

type callbackPageData struct {
	SessionID   string
	RedirectURL string
}

func (s *GameServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	sessionID, user, err := s.auth.CompleteLogin(r.URL.Query())
	if err != nil {
		s.writeJSONError(w, http.StatusUnauthorized, err)
		return
	}

	callbackURL := r.URL.Query().Get("callback_url")
	if callbackURL == "" {
		callbackURL = "/index.html"
	}
	redirectURL, err := withSessionID(callbackURL, sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, apperr.WithMessage(apperr.InvalidMessageFormat, "invalid callback_url"))
		return
	}

	s.log.Infow("login completed", "user_id", user.ID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	callbackPageTmpl.Execute(w, callbackPageData{SessionID: sessionID, RedirectURL: redirectURL})
}

// withSessionID appends session_id as a query parameter to target.
func withSessionID(target, sessionID string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *GameServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	user, err := s.auth.ValidateToken(sessionID)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "user": user})
}

type roomStatus struct {
	RoomID          string `json:"room_id"`
	PlayerCount     int    `json:"player_count"`
	IdleSeconds     int    `json:"idle_seconds"`
	IsGameOver      bool   `json:"is_game_over"`
	IsEmpty         bool   `json:"is_empty"`
	ShouldBeDeleted bool   `json:"should_be_deleted"`
}

func (s *GameServer) handleRoomsStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	ids := s.registry.List()
	statuses := make([]roomStatus, 0, len(ids))
	for _, id := range ids {
		e, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		empty := e.PlayerCount() == 0
		gameOver := e.IsGameOver()
		idle := e.IdleFor(now)
		shouldDelete := empty ||
			(gameOver && idle > s.roundDelay) ||
			(!gameOver && idle > s.maxIdle)
		statuses = append(statuses, roomStatus{
			RoomID:          id,
			PlayerCount:     e.PlayerCount(),
			IdleSeconds:     int(idle.Seconds()),
			IsGameOver:      gameOver,
			IsEmpty:         empty,
			ShouldBeDeleted: shouldDelete,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"rooms":       statuses,
		"total_rooms": len(statuses),
	})
}

func (s *GameServer) writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	code := "InternalError"
	if appErr, ok := err.(*apperr.Error); ok {
		code = appErr.Code()
	}
	json.NewEncoder(w).Encode(network.ErrorPayload{Code: code, Message: err.Error()})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	user, err := s.auth.ValidateToken(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ip := remoteIP(r)
	if s.sessions.CountByIP(ip) >= maxConnectionsPerIP {
		http.Error(w, "too many connections from this address", http.StatusTooManyRequests)
		return
	}

	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		roomID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Infof("failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.heartbeat)

	sess := session.NewSession(uuid.NewString(), wsConn)
	sess.UserID = user.ID
	sess.RoomID = roomID
	sess.RemoteIP = ip
	s.sessions.Add(sess)

	engine := s.registry.GetOrCreate(roomID, user.ID)
	s.registry.SetCurrentRoom(user.ID, roomID)

	s.log.Infow("connection established", "session_id", sess.ID, "user_id", user.ID, "room_id", roomID)

	attachReply := make(chan state.CommandResult, 1)
	engine.Submit(state.Command{Kind: state.CmdAttach, PlayerID: user.ID, Reply: attachReply})
	attached := <-attachReply

	cleanup := func() {
		if attached.Sub != nil {
			attached.Sub.Unsubscribe()
		}
		s.sessions.Remove(sess.ID)
		s.registry.ClearCurrentRoom(user.ID)
		engine.Submit(state.Command{Kind: state.CmdDetach, PlayerID: user.ID})
		wsConn.Close()
		s.log.Infow("connection closed", "session_id", sess.ID, "user_id", user.ID, "room_id", roomID)
	}
	defer cleanup()

	if err := wsConn.Send(network.Frame{Type: network.MsgUserInfo, Data: user}); err != nil {
		return
	}
	if attached.Snapshot != nil {
		wsConn.Send(network.Frame{Type: network.MsgStateUpdate, Data: attached.Snapshot})
	}

	outboundDone := make(chan struct{})
	if attached.Sub != nil {
		go s.pumpOutbound(wsConn, attached.Sub, outboundDone)
	} else {
		close(outboundDone)
	}

	s.readInbound(wsConn, engine, user, sess)
	<-outboundDone
}

// pumpOutbound drains one room's event stream to its socket until the
// subscription is closed (room shutdown or the connection fell behind).
func (s *GameServer) pumpOutbound(conn network.Connection, sub *broadcast.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.C() {
		if err := conn.Send(network.Frame{Type: outboundMsgType(ev.Kind), Data: ev.Payload}); err != nil {
			return
		}
	}
}

func outboundMsgType(kind broadcast.EventKind) string {
	switch kind {
	case broadcast.EventUserInfo:
		return network.MsgUserInfo
	case broadcast.EventRoomList:
		return network.MsgRoomList
	case broadcast.EventStateUpdate:
		return network.MsgStateUpdate
	case broadcast.EventNotification:
		return network.MsgNotification
	case broadcast.EventDescription:
		return network.MsgDescription
	case broadcast.EventVote:
		return network.MsgVoteEvent
	case broadcast.EventChat:
		return network.MsgChatEvent
	default:
		return network.MsgError
	}
}

// readInbound reads frames until the socket closes, submitting each as a
// command to engine and relaying synchronous errors back as error frames.
func (s *GameServer) readInbound(conn network.Connection, engine *room.Engine, user *models.User, sess *session.Session) {
	windowStart := time.Now()
	windowCount := 0

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		sess.Touch()
		if s.metrics != nil {
			s.metrics.IncMessagesReceived()
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			windowCount = 0
		}
		windowCount++
		if windowCount > maxInboundMessagesPerSecond {
			conn.Send(network.Frame{Type: network.MsgError, Data: network.ErrorPayload{
				Code: apperr.RateLimitExceeded.Code(), Message: "too many messages",
			}})
			continue
		}

		start := time.Now()
		s.dispatchFrame(conn, engine, user, frame)
		if s.metrics != nil {
			s.metrics.ObserveMessageLatency(time.Since(start))
		}
	}
}

func (s *GameServer) dispatchFrame(conn network.Connection, engine *room.Engine, user *models.User, frame *network.Frame) {
	cmd, buildErr := frameToCommand(user.ID, frame)
	if buildErr != nil {
		conn.Send(network.Frame{Type: network.MsgError, Data: network.ErrorPayload{
			Code: apperr.InvalidMessageFormat.Code(), Message: buildErr.Error(),
		}})
		return
	}
	if cmd.Kind == state.CmdJoin {
		cmd.User = user
	}

	reply := make(chan state.CommandResult, 1)
	cmd.Reply = reply
	engine.Submit(cmd)
	res := <-reply
	if res.Err != nil {
		conn.Send(network.Frame{Type: network.MsgError, Data: network.ErrorPayload{
			Code: res.Err.Code(), Message: res.Err.Error(),
		}})
	}
}

func frameToCommand(playerID string, frame *network.Frame) (state.Command, error) {
	switch frame.Type {
	case network.MsgJoin:
		var p network.JoinPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdJoin, PlayerID: playerID, Display: p.PlayerName}, nil
	case network.MsgReady:
		var p network.ReadyPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdReady, PlayerID: playerID, Flag: p.Flag}, nil
	case network.MsgDescribe:
		var p network.DescribePayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdDescribe, PlayerID: playerID, Content: p.Content}, nil
	case network.MsgVote:
		var p network.VotePayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdVote, PlayerID: playerID, TargetID: p.TargetID}, nil
	case network.MsgChat:
		var p network.ChatPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdChat, PlayerID: playerID, Content: p.Content}, nil
	case network.MsgChatDead:
		var p network.ChatPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdChatDead, PlayerID: playerID, Content: p.Content}, nil
	case network.MsgKick:
		var p network.KickPayload
		if err := decodePayload(frame.Data, &p); err != nil {
			return state.Command{}, err
		}
		return state.Command{Kind: state.CmdKick, PlayerID: playerID, TargetID: p.TargetID}, nil
	case network.MsgLeave:
		return state.Command{Kind: state.CmdLeave, PlayerID: playerID}, nil
	default:
		return state.Command{}, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

func decodePayload(data interface{}, target interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
