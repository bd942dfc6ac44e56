package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vcwatch/internal/urgency"
)

type mockChannel struct {
	name   string
	should bool
	result SendResult
	panics bool

	mu         sync.Mutex
	sends      int
	asyncSends int
	shouldCall int
	asyncDone  chan struct{}
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) ShouldSend(*Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldCall++
	return m.should
}

func (m *mockChannel) Send(context.Context, *Message) SendResult {
	m.mu.Lock()
	m.sends++
	m.mu.Unlock()
	if m.panics {
		panic("channel exploded")
	}
	return m.result
}

func (m *mockChannel) SendAsync(*Message) {
	m.mu.Lock()
	m.asyncSends++
	m.mu.Unlock()
	if m.asyncDone != nil {
		close(m.asyncDone)
	}
}

func (m *mockChannel) counts() (should, sends, async int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldCall, m.sends, m.asyncSends
}

func TestDispatcher_SendAggregatesInOrder(t *testing.T) {
	a := &mockChannel{name: "a", should: true, result: Sent()}
	b := &mockChannel{name: "b", should: false, result: Sent()}
	c := &mockChannel{name: "c", should: true, result: Failed("down")}
	d := NewDispatcher(nil, a, b, c)

	got := d.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, []Delivery{
		{Channel: "a", Result: Sent()},
		{Channel: "b", Result: Skipped(ReasonFiltered)},
		{Channel: "c", Result: Failed("down")},
	}, got)

	_, bSends, _ := b.counts()
	assert.Equal(t, 0, bSends, "filtered channel is not sent to")

	sent, skipped, failed := Summary(got)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	boom := &mockChannel{name: "boom", should: true, panics: true}
	bad := &mockChannel{name: "bad", should: true, result: Failed("exit 1")}
	good := &mockChannel{name: "good", should: true, result: Sent()}
	d := NewDispatcher(nil, boom, bad, good)

	got := d.Send(context.Background(), testMessage(urgency.High))
	require.Len(t, got, 3)
	assert.Equal(t, StatusFailed, got[0].Result.Status)
	assert.Contains(t, got[0].Result.Reason, "channel exploded")
	assert.Equal(t, Failed("exit 1"), got[1].Result)
	assert.Equal(t, Sent(), got[2].Result)

	_, goodSends, _ := good.counts()
	assert.Equal(t, 1, goodSends)
}

// namelessChannel panics when asked for its name.
type namelessChannel struct{ mockChannel }

func (*namelessChannel) Name() string { panic("no name") }

func TestDispatcher_NamePanicIsIsolated(t *testing.T) {
	nameless := &namelessChannel{mockChannel{should: true, result: Sent()}}
	good := &mockChannel{name: "good", should: true, result: Sent()}
	d := NewDispatcher(nil, nameless, good)

	got := d.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, []Delivery{
		{Channel: "channel-0", Result: Sent()},
		{Channel: "good", Result: Sent()},
	}, got)
	assert.Equal(t, []string{"channel-0", "good"}, d.Channels())

	d.SetDryRun(true)
	got = d.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, "channel-0", got[0].Channel)
	assert.Equal(t, Skipped(ReasonDryRun), got[0].Result)
}

func TestDispatcher_DryRunHasNoEffects(t *testing.T) {
	a := &mockChannel{name: "a", should: true, result: Sent()}
	b := &mockChannel{name: "b", should: false, result: Sent()}
	d := NewDispatcher(nil, a, b)
	d.SetDryRun(true)
	require.True(t, d.DryRun())

	got := d.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, []Delivery{
		{Channel: "a", Result: Skipped(ReasonDryRun)},
		{Channel: "b", Result: Skipped(ReasonDryRun)},
	}, got)

	d.SendAsync(testMessage(urgency.High))

	for _, ch := range []*mockChannel{a, b} {
		should, sends, async := ch.counts()
		assert.Zero(t, should, ch.name)
		assert.Zero(t, sends, ch.name)
		assert.Zero(t, async, ch.name)
	}

	_, skipped, _ := Summary(got)
	assert.Equal(t, 2, skipped)
}

func TestDispatcher_SendAsync(t *testing.T) {
	done := make(chan struct{})
	a := &mockChannel{name: "a", should: true, asyncDone: done}
	b := &mockChannel{name: "b", should: false}
	d := NewDispatcher(nil, a, b)

	d.SendAsync(testMessage(urgency.Medium))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async send not started")
	}
	_, _, bAsync := b.counts()
	assert.Zero(t, bAsync)
}

func TestDispatcher_SendAsyncReturnsPromptly(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := SenderFunc(func(ctx context.Context, _, _, _ string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	d := NewDispatcher(nil,
		NewMessagingChannel(MessagingConfig{ChannelType: "slack"}, slow, nil),
		NewMessagingChannel(MessagingConfig{ChannelType: "telegram"}, slow, nil),
	)

	start := time.Now()
	d.SendAsync(testMessage(urgency.High))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher(nil)
	assert.Empty(t, d.Send(context.Background(), testMessage(urgency.Low)))

	d.Register(&mockChannel{name: "x"})
	d.Register(NewLogChannel(&memAppender{}, nil))
	assert.Equal(t, []string{"x", "log"}, d.Channels())
}
