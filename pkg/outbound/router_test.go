package outbound

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records sends and returns a scripted outcome.
type fakeAdapter struct {
	mu     sync.Mutex
	sends  int
	lastTo string
	result SendResult
	err    error
	panics bool
	status ChannelStatus
}

func (a *fakeAdapter) Send(ctx context.Context, to, text string, opts SendOptions) (SendResult, error) {
	a.mu.Lock()
	a.sends++
	a.lastTo = to
	a.mu.Unlock()
	if a.panics {
		panic("adapter exploded")
	}
	return a.result, a.err
}

func (a *fakeAdapter) Status() ChannelStatus { return a.status }

func (a *fakeAdapter) sendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sends
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	r := NewRouter(zerolog.Nop())

	assert.Error(t, r.Register("", &fakeAdapter{}))
	assert.Error(t, r.Register("  ", &fakeAdapter{}))
	assert.Error(t, r.Register("mail", nil))
}

func TestSendUnknownChannelIsAValue(t *testing.T) {
	r := NewRouter(zerolog.Nop())

	res := r.Send(context.Background(), "ghost", "alice", "hi", SendOptions{})
	assert.False(t, res.OK)
	assert.Equal(t, "unknown channel", res.Error)
}

func TestSendRoutesToRegisteredAdapter(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	a := &fakeAdapter{result: SendResult{OK: true, MessageID: "m1"}}
	require.NoError(t, r.Register("mail", a))

	res := r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	assert.True(t, res.OK)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, 1, a.sendCount())
	assert.Equal(t, "alice", a.lastTo)
}

func TestRegisterReplacesAdapter(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	old := &fakeAdapter{result: SendResult{OK: true, MessageID: "old"}}
	next := &fakeAdapter{result: SendResult{OK: true, MessageID: "next"}}
	require.NoError(t, r.Register("mail", old))
	require.NoError(t, r.Register("mail", next))

	res := r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	assert.Equal(t, "next", res.MessageID)
	assert.Equal(t, 0, old.sendCount())
	assert.Equal(t, 1, next.sendCount())
}

func TestUnregisterMakesChannelUnknown(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	a := &fakeAdapter{result: SendResult{OK: true}}
	require.NoError(t, r.Register("mail", a))

	r.Unregister("mail")

	res := r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	assert.False(t, res.OK)
	assert.Equal(t, "unknown channel", res.Error)
}

func TestAdapterErrorBecomesResult(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	a := &fakeAdapter{err: assert.AnError}
	require.NoError(t, r.Register("mail", a))

	res := r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, assert.AnError.Error())
}

func TestAdapterPanicBecomesResult(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	a := &fakeAdapter{panics: true}
	require.NoError(t, r.Register("mail", a))

	var res SendResult
	assert.NotPanics(t, func() {
		res = r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "channel panic")
	assert.Contains(t, res.Error, "adapter exploded")
}

func TestFailedResultGetsDefaultError(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	a := &fakeAdapter{result: SendResult{OK: false}}
	require.NoError(t, r.Register("mail", a))

	res := r.Send(context.Background(), "mail", "alice", "hi", SendOptions{})
	assert.False(t, res.OK)
	assert.Equal(t, "send failed", res.Error)
}

func TestListChannelsSortedByID(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	require.NoError(t, r.Register("telegram", &fakeAdapter{status: ChannelStatus{Connected: true, Account: "bot"}}))
	require.NoError(t, r.Register("mail", &fakeAdapter{}))

	infos := r.ListChannels()
	require.Len(t, infos, 2)
	assert.Equal(t, "mail", infos[0].ID)
	assert.Equal(t, "telegram", infos[1].ID)
	assert.True(t, infos[1].Status.Connected)
	assert.Equal(t, "bot", infos[1].Status.Account)
}

func TestLogChannelDelivers(t *testing.T) {
	c := NewLogChannel(zerolog.Nop())

	res, err := c.Send(context.Background(), "alice", "hi", SendOptions{Subject: "greeting"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.NotEmpty(t, res.MessageID)
	assert.True(t, c.Status().Connected)
}
