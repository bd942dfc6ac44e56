package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Snapshot is one agent's terminal text at a polling instant.
type Snapshot struct {
	AgentID string
	Text    string
}

// Capturer supplies the current snapshots of every watched agent.
type Capturer interface {
	Capture(ctx context.Context) ([]Snapshot, error)
}

// CaptureFunc adapts a function to the Capturer interface.
type CaptureFunc func(ctx context.Context) ([]Snapshot, error)

// Capture calls f.
func (f CaptureFunc) Capture(ctx context.Context) ([]Snapshot, error) {
	return f(ctx)
}

// CommandCapturer captures one agent by running a command and taking its
// stdout, e.g. `tmux capture-pane -p -t agent`.
type CommandCapturer struct {
	AgentID string
	Name    string
	Args    []string
	Timeout time.Duration
}

// Capture implements Capturer.
func (c *CommandCapturer) Capture(ctx context.Context) ([]Snapshot, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capture command %s failed: %w: %s", c.Name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return []Snapshot{{AgentID: c.AgentID, Text: stdout.String()}}, nil
}

// Watch captures and observes every agent on each tick until ctx is done.
// Agents that drop out of the capture are forgotten. onDecision, if set, is
// called for every stable decision. Capture and observe failures are logged
// and the loop continues.
func (p *Pipeline) Watch(ctx context.Context, c Capturer, interval time.Duration, onDecision func(Decision)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive (got %v)", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		p.tick(ctx, c, seen, onDecision)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) tick(ctx context.Context, c Capturer, seen map[string]bool, onDecision func(Decision)) {
	snaps, err := c.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("capture failed", "error", err)
		}
		return
	}

	current := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		current[s.AgentID] = true

		d, err := p.Observe(ctx, s.AgentID, s.Text)
		if err != nil {
			p.logger.Warn("observe failed", "agent", s.AgentID, "error", err)
			continue
		}
		if d.Stable && onDecision != nil {
			onDecision(d)
		}
	}

	for id := range seen {
		if current[id] {
			continue
		}
		if err := p.Forget(ctx, id); err != nil {
			p.logger.Warn("forget failed", "agent", id, "error", err)
		}
		delete(seen, id)
		p.logger.Info("agent removed", "agent", id)
	}
	for id := range current {
		seen[id] = true
	}
}
