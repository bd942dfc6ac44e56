package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Delivery pairs a channel name with its result.
type Delivery struct {
	Channel string
	Result  SendResult
}

// Dispatcher fans a message out to its channels, in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []Channel
	dryRun   bool
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the given channels.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, logger: orDefault(logger)}
}

// Register appends a channel.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Channels returns the registered channel names in order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = channelName(ch, i)
	}
	return names
}

// SetDryRun toggles dry-run mode. In dry-run no channel is touched and
// every channel reports Skipped("dry-run").
func (d *Dispatcher) SetDryRun(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dryRun = on
}

// DryRun reports whether dry-run mode is on.
func (d *Dispatcher) DryRun() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dryRun
}

func (d *Dispatcher) snapshot() ([]Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Channel(nil), d.channels...), d.dryRun
}

// Send delivers msg to every channel and returns one Delivery per channel.
// A failing or panicking channel does not affect the others.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) []Delivery {
	channels, dryRun := d.snapshot()
	out := make([]Delivery, 0, len(channels))

	for i, ch := range channels {
		name := channelName(ch, i)
		if dryRun {
			out = append(out, Delivery{Channel: name, Result: Skipped(ReasonDryRun)})
			continue
		}

		res := d.sendOne(ctx, ch, msg)
		if res.Status == StatusFailed {
			d.logger.Warn("notification delivery failed",
				"channel", name, "message_id", msg.ID, "agent_id", msg.AgentID, "reason", res.Reason)
		} else {
			d.logger.Debug("notification delivered",
				"channel", name, "message_id", msg.ID, "result", res.String())
		}
		out = append(out, Delivery{Channel: name, Result: res})
	}
	return out
}

func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, msg *Message) (res SendResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Sprintf("panic: %v", r))
		}
	}()
	if !ch.ShouldSend(msg) {
		return Skipped(ReasonFiltered)
	}
	return ch.Send(ctx, msg)
}

// SendAsync starts delivery on every relevant channel and returns without
// waiting for any transport.
func (d *Dispatcher) SendAsync(msg *Message) {
	channels, dryRun := d.snapshot()
	if dryRun {
		d.logger.Debug("dry-run: async notification skipped", "message_id", msg.ID)
		return
	}
	for i, ch := range channels {
		d.startOne(i, ch, msg)
	}
}

func (d *Dispatcher) startOne(i int, ch Channel, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("channel panicked starting async send", "channel", channelName(ch, i), "panic", r)
		}
	}()
	if ch.ShouldSend(msg) {
		ch.SendAsync(msg)
	}
}

// channelName returns ch.Name(), or a positional name when Name panics.
func channelName(ch Channel, i int) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = fmt.Sprintf("channel-%d", i)
		}
	}()
	return ch.Name()
}

// Summary counts deliveries by status.
func Summary(deliveries []Delivery) (sent, skipped, failed int) {
	for _, dl := range deliveries {
		switch dl.Result.Status {
		case StatusSent:
			sent++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return sent, skipped, failed
}
