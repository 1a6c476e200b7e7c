package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/parleybot/parley/pkg/harness"
	"github.com/parleybot/parley/pkg/pool"
)

// Server exposes the session pool over websockets: every pool event is
// broadcast to connected clients, and clients push commands (send, answer,
// approve) back into sessions.
type Server struct {
	addr    string
	pool    *pool.Pool
	logger  zerolog.Logger
	clients *ClientRegistry

	upgrader websocket.Upgrader
	server   *http.Server

	seq         int64
	unsubscribe func()

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds server configuration.
type Config struct {
	Addr   string
	Pool   *pool.Pool
	Logger zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}

	return &Server{
		addr:    cfg.Addr,
		pool:    cfg.Pool,
		logger:  cfg.Logger,
		clients: NewClientRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Start subscribes to the pool and begins serving.
func (s *Server) Start() error {
	s.unsubscribe = s.pool.Subscribe(s.broadcast)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop unsubscribes, disconnects clients, and shuts the listener down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	for _, client := range s.clients.GetAll() {
		client.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// broadcast is the pool listener. It marshals once and enqueues to every
// client without blocking.
func (s *Server) broadcast(threadID string, ev harness.Event) {
	msg := EventMessage{
		Type:      "event",
		ThreadID:  threadID,
		Event:     ev,
		Seq:       atomic.AddInt64(&s.seq, 1),
		Timestamp: time.Now().UnixMilli(),
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to marshal event")
		return
	}

	for _, client := range s.clients.GetAll() {
		if !client.Enqueue(frame) {
			s.logger.Debug().
				Str("client_id", client.ID).
				Str("thread_id", threadID).
				Msg("Client queue full, event dropped")
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := NewClient(clientID, conn)
	s.clients.Add(client)

	s.logger.Info().
		Str("client_id", clientID).
		Int("clients", s.clients.Count()).
		Msg("Client connected")

	go s.readLoop(client)
}

func (s *Server) readLoop(client *Client) {
	defer func() {
		client.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd CommandMessage
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(client, ResultMessage{Type: "result", OK: false, Error: "invalid frame"})
			continue
		}

		s.reply(client, s.execute(&cmd))
	}
}

func (s *Server) reply(client *Client, msg ResultMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.Enqueue(frame)
}

// execute runs one client command against the pool.
func (s *Server) execute(cmd *CommandMessage) ResultMessage {
	res := ResultMessage{Type: "result", ID: cmd.ID}

	switch cmd.Action {
	case ActionSend:
		ctx := context.Background()
		if _, err := s.pool.GetOrCreate(ctx, cmd.ThreadID, "app"); err != nil {
			res.Error = err.Error()
			return res
		}
		if _, err := s.pool.Send(ctx, cmd.ThreadID, cmd.Text, nil); err != nil {
			res.Error = err.Error()
			return res
		}
		res.OK = true

	case ActionAnswer:
		sess, ok := s.pool.Get(cmd.ThreadID)
		if !ok {
			res.Error = "no session for thread"
			return res
		}
		if err := sess.Harness().RespondToQuestion(cmd.QuestionID, cmd.Answer); err != nil {
			res.Error = err.Error()
			return res
		}
		// Answering emits no runtime event of its own.
		s.pool.ClearQuestion(cmd.ThreadID)
		res.OK = true

	case ActionApproveTool:
		sess, ok := s.pool.Get(cmd.ThreadID)
		if !ok {
			res.Error = "no session for thread"
			return res
		}
		if err := sess.Harness().RespondToToolApproval(harness.Decision(cmd.Decision)); err != nil {
			res.Error = err.Error()
			return res
		}
		res.OK = true

	case ActionApprovePlan:
		sess, ok := s.pool.Get(cmd.ThreadID)
		if !ok {
			res.Error = "no session for thread"
			return res
		}
		if err := sess.Harness().RespondToPlanApproval(cmd.PlanID, harness.Decision(cmd.Decision)); err != nil {
			res.Error = err.Error()
			return res
		}
		res.OK = true

	case ActionStatus:
		status, ok := s.pool.Status(cmd.ThreadID)
		if !ok {
			res.Error = "no session for thread"
			return res
		}
		res.OK = true
		res.Data = map[string]any{
			"running":    status.Running,
			"pending":    status.Pending,
			"run_buffer": status.RunBuffer,
		}

	case ActionList:
		res.OK = true
		res.Data = s.pool.List()

	default:
		res.Error = fmt.Sprintf("unknown action: %s", cmd.Action)
	}

	return res
}
