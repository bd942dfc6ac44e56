package urgency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Scenarios(t *testing.T) {
	assert.Equal(t, High, Classify("permission_request", ""))
	assert.Equal(t, Medium, Classify("notification", `{"notification_type":"idle_prompt"}`))
	assert.Equal(t, Low, Classify("stop", ""))
}

func TestClassify_EventTypes(t *testing.T) {
	tests := []struct {
		event string
		want  Level
	}{
		{"permission_request", High},
		{"PermissionRequest", High},
		{"permission-request", High},
		{"Permission Request", High},
		{"error", High},
		{"ERROR", High},
		{"waiting_for_input", High},
		{"WaitingForInput", High},
		{"agent_exit", Medium},
		{"abnormal-exit", Medium},
		{"crash", Medium},
		{"session_start", Low},
		{"SessionEnd", Low},
		{"stop", Low},
		{"PreToolUse", Low},
		{"post_tool_use", Low},
		{"SubagentStop", Low},
		{"something_new", Low},
		{"", Low},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.event, ""))
		})
	}
}

func TestClassify_Notification(t *testing.T) {
	tests := []struct {
		name    string
		context string
		want    Level
	}{
		{"permission prompt", `{"notification_type":"permission_prompt","message":"Claude needs your permission"}`, High},
		{"idle prompt", `{"notification_type":"idle_prompt"}`, Medium},
		{"other type", `{"notification_type":"auth_success"}`, Low},
		{"missing field", `{"message":"hello"}`, Low},
		{"empty", "", Low},
		{"not json", "the agent is waiting", Low},
		{
			"with snapshot section",
			"{\"notification_type\":\"permission_prompt\"}\n--- terminal snapshot ---\n{\"notification_type\":\"idle_prompt\"} [y/n]",
			High,
		},
		{"snapshot only", "--- terminal snapshot ---\n{\"notification_type\":\"permission_prompt\"}", Low},
		{"trailing prose", `{"notification_type":"idle_prompt"} and then some text`, Medium},
		{"truncated json", `{"session":"x","notification_type":"permission_prompt","mess`, High},
		{"leading prose", `hook payload: {"notification_type":"idle_prompt"}`, Medium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify("notification", tt.context))
			assert.Equal(t, tt.want, Classify("Notification", tt.context))
		})
	}
}

func TestClassify_Total(t *testing.T) {
	inputs := []string{
		"", "{", "}", "{{{{", `{"notification_type":`, `{"notification_type":42}`,
		"\x00\xff", "null", "[]", `{"notification_type":null}`,
		"--- terminal snapshot ---", "💥",
	}
	for _, e := range []string{"notification", "error", "", "\xff"} {
		for _, c := range inputs {
			assert.NotPanics(t, func() {
				level := Classify(e, c)
				assert.Contains(t, []Level{Low, Medium, High}, level)
			})
		}
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "MEDIUM", Medium.String())
	assert.Equal(t, "LOW", Low.String())

	assert.Equal(t, High, Parse("high"))
	assert.Equal(t, Medium, Parse(" MEDIUM "))
	assert.Equal(t, Low, Parse("whatever"))
}

func TestLevel_AtLeast(t *testing.T) {
	assert.True(t, High.AtLeast(Medium))
	assert.True(t, Medium.AtLeast(Medium))
	assert.False(t, Low.AtLeast(Medium))
}
