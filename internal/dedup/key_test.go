package dedup

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexKeyRegex = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestKey_Format(t *testing.T) {
	inputs := []string{"", "hello", "多字节文本", "\x1b[31mred\x1b[0m", "a\nb\nc"}
	for _, in := range inputs {
		key := Key(in)
		assert.Len(t, key, KeyLength)
		assert.Regexp(t, hexKeyRegex, key, "input %q", in)
	}
}

func TestKey_Idempotent(t *testing.T) {
	text := "Do you want to proceed?\n1. Yes\n2. No"
	assert.Equal(t, Key(text), Key(text))
}

func TestKey_CosmeticEquivalence(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "ansi colors and bracketed clock",
			a:    "\x1b[31m[10:30:00]\x1b[0m Question?\n1. A\n2. B",
			b:    "\x1b[32m[11:45:30]\x1b[0m Question?\n1. A\n2. B",
		},
		{
			name: "iso datetime",
			a:    "2024-01-15T10:30:00Z build finished\nContinue? [y/n]",
			b:    "2025-06-01T23:59:59+08:00 build finished\nContinue? [y/n]",
		},
		{
			name: "bracketed epoch",
			a:    "[1700000000] waiting",
			b:    "[1700000123456] waiting",
		},
		{
			name: "bare dates",
			a:    "report 2024-01-15 ready",
			b:    "report 2023/12/31 ready",
		},
		{
			name: "short clock without seconds",
			a:    "[9:05] ready",
			b:    "[23:59] ready",
		},
		{
			name: "osc title sequences",
			a:    "\x1b]0;agent working\x07Proceed?",
			b:    "\x1b]2;other title\x1b\\Proceed?",
		},
		{
			name: "blank lines and trailing spaces",
			a:    "line one\n\n\nline two   \n",
			b:    "\nline one\nline two",
		},
		{
			name: "crlf",
			a:    "line one\r\nline two",
			b:    "line one\nline two",
		},
		{
			name: "bare escape",
			a:    "\x1b7Prompt:\x1b8",
			b:    "Prompt:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Key(tt.a), Key(tt.b))
		})
	}
}

func TestKey_DistinctContent(t *testing.T) {
	corpus := []string{
		"Question?\n1. A\n2. B",
		"Question?\n1. A\n2. C",
		"Question!\n1. A\n2. B",
		"Write to /tmp/a.txt? [Y]es / [N]o",
		"Write to /tmp/b.txt? [Y]es / [N]o",
		"是否继续？[是/否]",
		"是否删除？[是/否]",
		"Press Enter to continue",
		"press enter to continue",
		"Enter your name:",
		"Enter your email:",
	}

	seen := make(map[string]string)
	for _, text := range corpus {
		key := Key(text)
		if other, dup := seen[key]; dup {
			t.Fatalf("collision between %q and %q", text, other)
		}
		seen[key] = text
	}
}

func TestKey_DoesNotFilterToolNoise(t *testing.T) {
	// Spinner frames are visible content; filtering them is the
	// classifier's job, not the key's.
	assert.NotEqual(t, Key("⠋ Thinking..."), Key("⠙ Thinking..."))
}

func TestNormalize(t *testing.T) {
	got := Normalize("\x1b[1m[12:00:01]\x1b[0m  Hello\n\n   \n2024-02-03 world  \n")
	assert.Equal(t, "Hello\n world", got)
}

func TestStripANSI_NoEscapes(t *testing.T) {
	s := "plain text\twith tab"
	assert.Equal(t, s, StripANSI(s))
}

func TestMemoryTracker_Observe(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(0)

	repeat, err := tr.Observe(ctx, "agent-1", "content", "k1")
	require.NoError(t, err)
	assert.False(t, repeat, "first key is new")

	repeat, err = tr.Observe(ctx, "agent-1", "content", "k1")
	require.NoError(t, err)
	assert.True(t, repeat, "same key repeats")

	repeat, _ = tr.Observe(ctx, "agent-2", "content", "k1")
	assert.False(t, repeat, "agents are isolated")

	repeat, _ = tr.Observe(ctx, "agent-1", "semantic", "k1")
	assert.False(t, repeat, "scopes are isolated")

	repeat, _ = tr.Observe(ctx, "agent-1", "content", "k2")
	assert.False(t, repeat, "changed key is new")

	repeat, _ = tr.Observe(ctx, "agent-1", "content", "k1")
	assert.False(t, repeat, "only the last key counts")
}

func TestMemoryTracker_Forget(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(0)

	_, _ = tr.Observe(ctx, "agent-1", "content", "k1")
	require.NoError(t, tr.Forget(ctx, "agent-1"))

	repeat, err := tr.Observe(ctx, "agent-1", "content", "k1")
	require.NoError(t, err)
	assert.False(t, repeat)
}

func TestMemoryTracker_RenotifyAfter(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	repeat, _ := tr.Observe(ctx, "a", "content", "k")
	assert.False(t, repeat)

	now = now.Add(30 * time.Second)
	repeat, _ = tr.Observe(ctx, "a", "content", "k")
	assert.True(t, repeat)

	now = now.Add(31 * time.Second)
	repeat, _ = tr.Observe(ctx, "a", "content", "k")
	assert.False(t, repeat, "stale key re-announces")

	now = now.Add(10 * time.Second)
	repeat, _ = tr.Observe(ctx, "a", "content", "k")
	assert.True(t, repeat, "renotify resets the clock")
}
