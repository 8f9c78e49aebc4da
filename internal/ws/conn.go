package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/mw"
	"github.com/Harsh4r0ra/chat-cli/internal/terminal"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxFrame   = 64 << 10
)

// Client is one websocket connection driving one terminal console.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	console *terminal.Console
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *Client) out(f terminal.Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		log.Warn().Str("type", f.Type).Msg("terminal too slow, frame dropped")
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Serve upgrades the request and runs a terminal on it. A bearer token, if
// given, restores the session; otherwise the terminal starts signed out.
func Serve(h *Hub, client backend.Client, cfg config.Config) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(cfg.Env, cfg.CORSAllowedOrigins, r)
		},
	}
	opts := terminal.Options{
		Retention:     time.Duration(cfg.MessageRetentionHours) * time.Hour,
		SweepInterval: time.Duration(cfg.SweepIntervalMinutes) * time.Minute,
	}
	return func(c *gin.Context) {
		token := auth.BearerToken(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cl := &Client{
			hub:     h,
			conn:    conn,
			send:    make(chan []byte, 256),
			limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
		}
		cl.console = terminal.New(ctx, client, opts, cl.out)
		if !h.add(cl) {
			_ = conn.Close()
			return
		}

		go cl.writePump()
		cl.console.Start(token)
		cl.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.console.Close()
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in terminal.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if !c.limiter.Allow() {
			c.out(terminal.Frame{Type: terminal.FrameLine, Level: terminal.LevelError, Text: "Too many inputs, slow down."})
			continue
		}
		switch in.Type {
		case terminal.InboundInput:
			c.console.HandleInput(in.Text)
		case terminal.InboundNote:
			c.console.HandleNote(in.NoteOp)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
