package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 10 * time.Second
	readLimit  = 64 << 10

	// BotPrefix marks lines written by the bot so echoes are not re-handled.
	BotPrefix = "[bot]"
)

// CommandHandler executes a "!command" line received from a chat client.
type CommandHandler interface {
	HandleCommand(text string) error
}

type HubConf struct {
	Listen         string   `json:"listen" mapstructure:"listen"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	History        int      `json:"history" mapstructure:"history"`
}

// Hub is a websocket chat room: every Emit goes to all connected clients and
// clients may send commands back.
type Hub struct {
	conf     HubConf
	recorder *Recorder
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	handler CommandHandler

	server *http.Server
	closed bool
}

type client struct {
	id    uuid.UUID
	conn  *websocket.Conn
	proto bool

	wmu  sync.Mutex // serializes writes
	once sync.Once
	stop chan struct{}
}

func NewHub(conf HubConf) *Hub {
	return &Hub{
		conf:     conf,
		recorder: NewRecorder(conf.History),
		upgrader: websocket.Upgrader{
			// origins are enforced by the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*client),
	}
}

// SetCommandHandler routes incoming "!" lines. Without a handler they are only
// logged.
func (h *Hub) SetCommandHandler(ch CommandHandler) {
	h.mu.Lock()
	h.handler = ch
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit broadcasts a line to every client. Clients whose write fails are dropped.
func (h *Hub) Emit(text string) {
	h.recorder.Emit(text)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	line := BotPrefix + " " + text
	frame, err := protoFrame(line, time.Now())
	if err != nil {
		logrus.WithError(err).Errorln("Failed to encode proto frame")
	}

	for _, c := range targets {
		var werr error
		if c.proto {
			if frame == nil {
				continue
			}
			werr = c.write(websocket.BinaryMessage, frame)
		} else {
			werr = c.write(websocket.TextMessage, []byte(line))
		}
		if werr != nil {
			logrus.WithFields(logrus.Fields{
				"client": c.id,
			}).WithError(werr).Warnln("Dropping chat client after failed write")
			h.remove(c)
		}
	}
}

// Router builds the gin engine serving /ws, /healthz and /api/summary.
func (h *Hub) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConf := cors.Config{
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Sec-WebSocket-Protocol",
		},
		AllowWebSockets: true,
	}
	if len(h.conf.AllowedOrigins) == 0 {
		corsConf.AllowAllOrigins = true
	} else {
		corsConf.AllowOrigins = h.conf.AllowedOrigins
	}
	router.Use(cors.New(corsConf))

	router.GET("/ws", h.serveWS)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.ClientCount()})
	})
	router.GET("/api/summary", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"lines": h.recorder.Lines()})
	})
	return router
}

// ListenAndServe blocks until Shutdown. After Shutdown it returns at once.
func (h *Hub) ListenAndServe() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.server = &http.Server{
		Addr:              h.conf.Listen,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := h.server
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"addr": h.conf.Listen,
	}).Infoln("Chat hub listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	srv := h.server
	h.server = nil
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warnln("Chat hub shutdown")
		}
	}
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) serveWS(ctx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logrus.WithError(err).Warnln("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:    uuid.New(),
		conn:  conn,
		proto: strings.EqualFold(ctx.Query("format"), "proto"),
		stop:  make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"client": c.id,
		"proto":  c.proto,
	}).Infoln("Chat client connected")

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()

	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithFields(logrus.Fields{
					"client": c.id,
				}).WithError(err).Warnln("Chat client read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		text := strings.TrimSpace(string(data))
		if text == "" || strings.HasPrefix(text, BotPrefix) {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"client": c.id,
		}).Infoln(text)

		if !strings.HasPrefix(text, "!") {
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler.HandleCommand(text); err != nil {
			h.Emit("err: " + err.Error())
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if ok {
		logrus.WithFields(logrus.Fields{
			"client": c.id,
		}).Infoln("Chat client disconnected")
	}
}

func (c *client) write(kind int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *client) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.wmu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.stop)
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		c.wmu.Unlock()
		_ = c.conn.Close()
	})
}

// protoFrame encodes a notice for binary clients as a google.protobuf.Struct
// with "text" and "time" fields.
func protoFrame(text string, at time.Time) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"text": text,
		"time": at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodeFrame is the inverse of the binary frame encoding.
func DecodeFrame(data []byte) (text string, at time.Time, err error) {
	var s structpb.Struct
	if err = proto.Unmarshal(data, &s); err != nil {
		return "", time.Time{}, err
	}
	fields := s.GetFields()
	text = fields["text"].GetStringValue()
	at, err = time.Parse(time.RFC3339, fields["time"].GetStringValue())
	return text, at, err
}
