// Package waitpattern classifies a window of terminal text into the kind of
// human input an agent is blocked on, if any.
//
// Rules are plain substrings and regular expressions with no knowledge of a
// particular agent CLI, and cover Latin and CJK phrasing. The first matching
// rule wins; rules are declared most-specific first.
package waitpattern

// WaitPattern is the closed set of prompt shapes the classifier reports.
type WaitPattern int

const (
	// None means no wait was detected. It is the zero value and is only ever
	// paired with IsWaiting=false.
	None WaitPattern = iota

	// Confirmation is an explicit choice prompt: [y/n], (yes/no),
	// [Y]es / [N]o, 是否, [是/否].
	Confirmation

	// ColonPrompt is a short trailing line ending in ':' asking for a value.
	ColonPrompt

	// Continue asks whether to keep going: "continue?", "shall I proceed".
	Continue

	// PressEnter waits for a keypress: "press enter to continue".
	PressEnter

	// PermissionRequest asks for approval of an action.
	PermissionRequest

	// Other is a recognizable wait that fits none of the above, such as a
	// trailing question or a numbered selection menu.
	Other

	// Unknown means the window could not be classified at all. It is a
	// classifier failure, not agent activity, and must not be treated as
	// "still processing".
	Unknown
)

// String returns the snake_case name used in logs and records.
func (p WaitPattern) String() string {
	switch p {
	case None:
		return "none"
	case Confirmation:
		return "confirmation"
	case ColonPrompt:
		return "colon_prompt"
	case Continue:
		return "continue"
	case PressEnter:
		return "press_enter"
	case PermissionRequest:
		return "permission_request"
	case Other:
		return "other"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Verdict is the classifier output.
type Verdict struct {
	IsWaiting bool
	Pattern   WaitPattern

	// Rule names the rule that matched, empty when nothing did.
	Rule string

	// Line is the trailing-window line the rule matched on, if the rule is
	// line-oriented. Used as a short summary for rule-only notifications.
	Line string
}
