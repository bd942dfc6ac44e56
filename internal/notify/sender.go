package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSendTimeout bounds one invocation of the messaging command.
const DefaultSendTimeout = 15 * time.Second

// Sender delivers formatted text to a target on some messaging service.
type Sender interface {
	SendMessage(ctx context.Context, channelType, target, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, channelType, target, text string) error

// SendMessage calls f.
func (f SenderFunc) SendMessage(ctx context.Context, channelType, target, text string) error {
	return f(ctx, channelType, target, text)
}

// Runner runs an external program and returns its captured stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// CommandSender invokes
//
//	<command> message send --channel <type> --target <id> --message <text>
//
// A zero exit status is success; anything else fails with the captured
// stderr in the error.
type CommandSender struct {
	command string
	runner  Runner
	timeout time.Duration
}

// NewCommandSender returns a sender that runs command through os/exec.
// A non-positive timeout uses DefaultSendTimeout.
func NewCommandSender(command string, timeout time.Duration) *CommandSender {
	return NewCommandSenderWithRunner(command, timeout, execRunner{})
}

// NewCommandSenderWithRunner is NewCommandSender with a custom Runner.
func NewCommandSenderWithRunner(command string, timeout time.Duration, runner Runner) *CommandSender {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &CommandSender{command: command, runner: runner, timeout: timeout}
}

// SendMessage implements Sender.
func (s *CommandSender) SendMessage(ctx context.Context, channelType, target, text string) error {
	if s.command == "" {
		return fmt.Errorf("no messaging command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stderr, err := s.runner.Run(ctx, s.command,
		"message", "send",
		"--channel", channelType,
		"--target", target,
		"--message", text,
	)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %v", s.command, s.timeout)
		}
		if msg == "" {
			return fmt.Errorf("%s failed: %w", s.command, err)
		}
		return fmt.Errorf("%s failed: %w: %s", s.command, err, msg)
	}
	return nil
}
