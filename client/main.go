package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/undercover/server/network"
)

func send(c *websocket.Conn, msgType string, data interface{}) error {
	return c.WriteJSON(network.Frame{Type: msgType, Data: data})
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server host:port")
	sessionID := flag.String("session", "", "session id from /auth/callback")
	roomID := flag.String("room", "", "room id to join, blank creates a new room")
	name := flag.String("name", "player", "display name to join with")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	q := url.Values{}
	if *sessionID != "" {
		q.Set("session_id", *sessionID)
	}
	if *roomID != "" {
		q.Set("room_id", *roomID)
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var frame network.Frame
			if err := c.ReadJSON(&frame); err != nil {
				log.Println("read error:", err)
				return
			}
			log.Printf("<- %s %v", frame.Type, frame.Data)
		}
	}()

	if err := send(c, network.MsgJoin, network.JoinPayload{PlayerName: *name}); err != nil {
		log.Println("write error:", err)
		return
	}
	log.Println("joined; commands: ready | describe <text> | vote <player_id> | chat <text> | leave")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt received, closing connection")
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			line, _ := reader.ReadString('\n')
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := dispatchCommand(c, line); err != nil {
				log.Println("write error:", err)
				return
			}
		}
	}
}

func dispatchCommand(c *websocket.Conn, line string) error {
	parts := strings.SplitN(line, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "ready":
		return send(c, network.MsgReady, network.ReadyPayload{Flag: true})
	case "unready":
		return send(c, network.MsgReady, network.ReadyPayload{Flag: false})
	case "describe":
		return send(c, network.MsgDescribe, network.DescribePayload{Content: arg})
	case "vote":
		return send(c, network.MsgVote, network.VotePayload{TargetID: arg})
	case "chat":
		return send(c, network.MsgChat, network.ChatPayload{Content: arg})
	case "chatdead":
		return send(c, network.MsgChatDead, network.ChatPayload{Content: arg})
	case "leave":
		return send(c, network.MsgLeave, network.LeavePayload{})
	default:
		raw, err := json.Marshal(arg)
		if err != nil {
			return err
		}
		log.Printf("unknown command %q (payload %s)", cmd, raw)
		return nil
	}
}
