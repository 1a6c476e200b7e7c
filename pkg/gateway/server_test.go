package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/pkg/harness"
	"github.com/parleybot/parley/pkg/pool"
)

// stubHarness is a minimal runtime for gateway tests.
type stubHarness struct {
	mu   sync.Mutex
	subs []func(harness.Event)

	answerErr error
	toolErr   error
	planErr   error

	answers   []string
	decisions []harness.Decision
}

func (h *stubHarness) Init(ctx context.Context) error { return nil }

func (h *stubHarness) SwitchThread(ctx context.Context, id string) error { return nil }

func (h *stubHarness) CreateThread(ctx context.Context, t string) (string, error) {
	return "", nil
}

func (h *stubHarness) SendMessage(ctx context.Context, content string, media []string) error {
	h.emit(harness.Event{Kind: harness.EventAgentStart})
	h.emit(harness.Event{Kind: harness.EventAgentEnd})
	return nil
}

func (h *stubHarness) Subscribe(fn func(harness.Event)) func() {
	h.mu.Lock()
	h.subs = append(h.subs, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *stubHarness) emit(ev harness.Event) {
	h.mu.Lock()
	fns := append(([]func(harness.Event))(nil), h.subs...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *stubHarness) IsRunning() bool { return false }

func (h *stubHarness) RespondToQuestion(questionID, answer string) error {
	h.mu.Lock()
	h.answers = append(h.answers, answer)
	h.mu.Unlock()
	return h.answerErr
}

func (h *stubHarness) RespondToToolApproval(d harness.Decision) error {
	h.mu.Lock()
	h.decisions = append(h.decisions, d)
	h.mu.Unlock()
	return h.toolErr
}

func (h *stubHarness) RespondToPlanApproval(planID string, d harness.Decision) error {
	h.mu.Lock()
	h.decisions = append(h.decisions, d)
	h.mu.Unlock()
	return h.planErr
}

func (h *stubHarness) StopHeartbeats()         {}
func (h *stubHarness) DestroyWorkspace() error { return nil }

func newTestServer(t *testing.T) (*Server, *pool.Pool) {
	t.Helper()
	p, err := pool.New(pool.Options{
		Factory: func() harness.Harness { return &stubHarness{} },
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	s, err := NewServer(Config{Addr: "127.0.0.1:0", Pool: p, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s, p
}

func TestNewServerValidation(t *testing.T) {
	p, err := pool.New(pool.Options{
		Factory: func() harness.Harness { return &stubHarness{} },
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = NewServer(Config{Pool: p})
	assert.Error(t, err)

	_, err = NewServer(Config{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestExecuteSendCreatesSessionAndRuns(t *testing.T) {
	s, p := newTestServer(t)

	res := s.execute(&CommandMessage{ID: "c1", Action: ActionSend, ThreadID: "t1", Text: "hello"})
	assert.True(t, res.OK)
	assert.Equal(t, "c1", res.ID)

	_, ok := p.Get("t1")
	assert.True(t, ok)
}

func TestExecuteSendRequiresThreadID(t *testing.T) {
	s, _ := newTestServer(t)

	res := s.execute(&CommandMessage{Action: ActionSend, Text: "hello"})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestExecuteAnswerClearsPendingQuestion(t *testing.T) {
	s, p := newTestServer(t)

	_, err := p.GetOrCreate(context.Background(), "t1", "app")
	require.NoError(t, err)
	sess, _ := p.Get("t1")
	stub := sess.Harness().(*stubHarness)
	stub.emit(harness.Event{Kind: harness.EventAskQuestion, QuestionID: "q1", Question: "Proceed?"})

	st, _ := p.Status("t1")
	require.NotNil(t, st.Pending.Question)

	res := s.execute(&CommandMessage{Action: ActionAnswer, ThreadID: "t1", QuestionID: "q1", Answer: "yes"})
	assert.True(t, res.OK)
	assert.Equal(t, []string{"yes"}, stub.answers)

	st, _ = p.Status("t1")
	assert.Nil(t, st.Pending.Question)
}

func TestExecuteAnswerUnknownThread(t *testing.T) {
	s, _ := newTestServer(t)

	res := s.execute(&CommandMessage{Action: ActionAnswer, ThreadID: "ghost", QuestionID: "q1"})
	assert.False(t, res.OK)
	assert.Equal(t, "no session for thread", res.Error)
}

func TestExecuteApproveToolForwardsDecision(t *testing.T) {
	s, p := newTestServer(t)

	_, err := p.GetOrCreate(context.Background(), "t1", "app")
	require.NoError(t, err)
	sess, _ := p.Get("t1")
	stub := sess.Harness().(*stubHarness)

	res := s.execute(&CommandMessage{Action: ActionApproveTool, ThreadID: "t1", Decision: "approve"})
	assert.True(t, res.OK)
	assert.Equal(t, []harness.Decision{harness.DecisionApprove}, stub.decisions)
}

func TestExecuteApprovePlanSurfacesHarnessError(t *testing.T) {
	s, p := newTestServer(t)

	_, err := p.GetOrCreate(context.Background(), "t1", "app")
	require.NoError(t, err)
	sess, _ := p.Get("t1")
	stub := sess.Harness().(*stubHarness)
	stub.planErr = assert.AnError

	res := s.execute(&CommandMessage{Action: ActionApprovePlan, ThreadID: "t1", PlanID: "p1", Decision: "deny"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, assert.AnError.Error())
}

func TestExecuteStatus(t *testing.T) {
	s, p := newTestServer(t)

	res := s.execute(&CommandMessage{Action: ActionStatus, ThreadID: "ghost"})
	assert.False(t, res.OK)

	_, err := p.GetOrCreate(context.Background(), "t1", "app")
	require.NoError(t, err)

	res = s.execute(&CommandMessage{Action: ActionStatus, ThreadID: "t1"})
	assert.True(t, res.OK)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["running"])
}

func TestExecuteList(t *testing.T) {
	s, p := newTestServer(t)

	_, err := p.GetOrCreate(context.Background(), "t1", "app")
	require.NoError(t, err)

	res := s.execute(&CommandMessage{Action: ActionList})
	assert.True(t, res.OK)
	infos, ok := res.Data.([]pool.SessionInfo)
	require.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, "t1", infos[0].ThreadID)
}

func TestExecuteUnknownAction(t *testing.T) {
	s, _ := newTestServer(t)

	res := s.execute(&CommandMessage{Action: "reboot"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "unknown action")
}

// wsPair upgrades one real websocket connection and hands back both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of websocket")
	}
	return server, client
}

func TestClientWriterDeliversFrames(t *testing.T) {
	serverConn, clientConn := wsPair(t)

	c := NewClient("c1", serverConn)
	defer c.Close()

	assert.True(t, c.Enqueue([]byte(`{"hello":true}`)))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":true}`, string(frame))
}

func TestClientEnqueueAfterClose(t *testing.T) {
	serverConn, _ := wsPair(t)

	c := NewClient("c1", serverConn)
	c.Close()
	c.Close()

	assert.False(t, c.Enqueue([]byte("late")))
}

func TestReadLoopExecutesCommands(t *testing.T) {
	s, p := newTestServer(t)
	serverConn, clientConn := wsPair(t)

	c := NewClient("c1", serverConn)
	s.clients.Add(c)
	go s.readLoop(c)

	require.NoError(t, clientConn.WriteJSON(CommandMessage{
		Type: "command", ID: "c1", Action: ActionSend, ThreadID: "t1", Text: "hello",
	}))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var res ResultMessage
	require.NoError(t, clientConn.ReadJSON(&res))
	assert.True(t, res.OK)
	assert.Equal(t, "c1", res.ID)

	_, ok := p.Get("t1")
	assert.True(t, ok)
}

func TestReadLoopRejectsInvalidFrame(t *testing.T) {
	s, _ := newTestServer(t)
	serverConn, clientConn := wsPair(t)

	c := NewClient("c1", serverConn)
	s.clients.Add(c)
	go s.readLoop(c)

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("not json")))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var res ResultMessage
	require.NoError(t, clientConn.ReadJSON(&res))
	assert.False(t, res.OK)
	assert.Equal(t, "invalid frame", res.Error)
}

func TestBroadcastReachesConnectedClients(t *testing.T) {
	s, _ := newTestServer(t)
	serverConn, clientConn := wsPair(t)

	c := NewClient("c1", serverConn)
	s.clients.Add(c)

	s.broadcast("t1", harness.Event{Kind: harness.EventAgentStart})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, clientConn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, harness.EventAgentStart, msg.Event.Kind)
	assert.Equal(t, int64(1), msg.Seq)
}
