package waitpattern

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/steveyegge/vcwatch/internal/dedup"
)

// DefaultTailLines is how many trailing non-blank lines the classifier looks
// at. Older output usually holds prompts that were already answered.
const DefaultTailLines = 12

// maxColonPromptRunes bounds how long a trailing "label:" line may be before
// it reads as prose rather than an input prompt.
const maxColonPromptRunes = 80

type scope int

const (
	scopeWindow   scope = iota // any line of the trailing prompt block, newest first
	scopeLastLine              // only the newest non-blank line
)

// Prompt block recognition.
const (
	frameChars   = "│┃║|╭╮╰╯┌┐└┘├┤─━═+- \t"
	inputMarkers = "❯›>$#_ "
)

var (
	optionLine  = regexp.MustCompile(`^(?:[❯›>▶→]\s*)?(?:\d+|[A-Za-z])[.)]\s+\S|^[❯›>▶→]\s+\S`)
	choiceToken = regexp.MustCompile(`\[[A-Za-z]\]`)
	keyHint     = regexp.MustCompile(`(?i)\b(?:esc|enter|tab|space|ctrl\+\w|shift\+\w)\s+to\b|\(esc\)|arrow keys|[↑↓]`)
)

type rule struct {
	name    string
	pattern WaitPattern
	scope   scope
	re      *regexp.Regexp
}

// ruleDefs is the ordered rule table. Declaration order is the tie-break:
// explicit option syntax beats phrasing, phrasing beats punctuation.
var ruleDefs = []struct {
	name    string
	pattern WaitPattern
	scope   scope
	expr    string
}{
	// Confirmation: explicit two-way choices.
	{"bracket_yes_no", Confirmation, scopeWindow, `(?i)[\[(]\s*y(?:es)?\s*/\s*n(?:o)?\s*[\])]`},
	{"option_yes_no", Confirmation, scopeWindow, `(?i)\[y\]es\s*/\s*\[n\]o`},
	{"bare_yes_no", Confirmation, scopeWindow, `(?i)\byes\s*/\s*no\b`},
	{"cjk_choice", Confirmation, scopeWindow, `[\[(（【]\s*(?:是|否|确认|取消)\s*[/／]\s*(?:是|否|确认|取消)\s*[\])）】]`},
	{"cjk_whether", Confirmation, scopeWindow, `是否`},
	{"cjk_confirm", Confirmation, scopeWindow, `(?:确认|确定)(?:吗|[?？])`},

	// PermissionRequest: approval of a specific action.
	{"do_you_want", PermissionRequest, scopeWindow, `(?i)do you want (?:me )?to (?:allow|proceed|make this edit|make these edits|run|create|write|edit|delete|overwrite|execute|apply)`},
	{"allow_question", PermissionRequest, scopeWindow, `(?i)\b(?:allow|approve|permit|grant)\b[^?？]*[?？]`},
	{"permission_phrase", PermissionRequest, scopeWindow, `(?i)\b(?:permission|approval) (?:is )?(?:required|requested|needed)\b|\brequires? (?:your )?(?:approval|permission)\b|\bwaiting for (?:your )?(?:approval|permission)\b`},
	{"cjk_permission", PermissionRequest, scopeWindow, `(?:请求|需要)(?:您的)?(?:授权|批准|权限)|(?:允许|授权|批准).*(?:吗|[?？])`},

	// PressEnter: a bare keypress unblocks the agent.
	{"press_key", PressEnter, scopeWindow, `(?i)\b(?:press|hit) (?:enter|return|any key)\b`},
	{"cjk_press_key", PressEnter, scopeWindow, `按\s*(?:下\s*)?(?:回车|(?i:enter)|任意键)`},

	// Continue: go / no-go without explicit options.
	{"continue_question", Continue, scopeWindow, `(?i)\b(?:continue|proceed|go on|keep going)\s*[?？]`},
	{"shall_i_continue", Continue, scopeWindow, `(?i)\b(?:shall|should|may|can) i (?:continue|proceed|go ahead|keep going)\b`},
	{"cjk_continue", Continue, scopeWindow, `继续(?:吗|[?？])|要继续`},

	// ColonPrompt: newest line is a short "label:".
	{"trailing_colon", ColonPrompt, scopeLastLine, `[:：]\s*$`},

	// Other: a wait we recognize only by shape.
	{"selection_menu", Other, scopeWindow, `^\s*[❯›>]\s*\d+[.)]\s+\S`},
	{"trailing_question", Other, scopeLastLine, `[?？]\s*$`},
}

// Config controls the classifier window.
type Config struct {
	// TailLines is how many trailing non-blank lines are examined.
	// Default: 12
	TailLines int
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{TailLines: DefaultTailLines}
}

// Classifier is the rule engine. Rules are compiled once; a Classifier is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	rules     []rule
	tailLines int
}

// NewClassifier compiles the rule table.
func NewClassifier(cfg Config) *Classifier {
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}

	rules := make([]rule, 0, len(ruleDefs))
	for _, def := range ruleDefs {
		rules = append(rules, rule{
			name:    def.name,
			pattern: def.pattern,
			scope:   def.scope,
			re:      regexp.MustCompile(def.expr),
		})
	}
	return &Classifier{rules: rules, tailLines: cfg.TailLines}
}

// Classify inspects the trailing window of text. No match yields
// IsWaiting=false with Pattern None. A capture with visible bytes that
// reduce to nothing printable once escape sequences are removed yields
// Unknown.
//
// Window rules only see the trailing prompt block: lines after the newest
// line of ordinary output. A prompt followed by an echoed answer or by
// further output has been answered and does not match.
func (c *Classifier) Classify(text string) Verdict {
	lines, ok := c.window(text)
	if !ok {
		return Verdict{IsWaiting: false, Pattern: Unknown, Rule: "unreadable"}
	}
	if len(lines) == 0 {
		return Verdict{Pattern: None}
	}

	start := c.promptStart(lines)
	last := lines[len(lines)-1]
	for _, r := range c.rules {
		switch r.scope {
		case scopeLastLine:
			if r.pattern == ColonPrompt && utf8.RuneCountInString(last) > maxColonPromptRunes {
				continue
			}
			if r.re.MatchString(last) {
				return Verdict{IsWaiting: true, Pattern: r.pattern, Rule: r.name, Line: last}
			}
		default:
			for i := len(lines) - 1; i >= start; i-- {
				if r.re.MatchString(lines[i]) {
					return Verdict{IsWaiting: true, Pattern: r.pattern, Rule: r.name, Line: lines[i]}
				}
			}
		}
	}

	return Verdict{Pattern: None}
}

// promptStart returns the index of the first line of the trailing prompt
// block. It equals len(lines) when the newest line is ordinary output.
func (c *Classifier) promptStart(lines []string) int {
	i := len(lines)
	for i > 0 && c.promptLine(lines[i-1]) {
		i--
	}
	return i
}

// promptLine reports whether line can belong to a prompt: a question or
// label, an option, a key hint, box framing, or any window rule match.
func (c *Classifier) promptLine(line string) bool {
	s := strings.Trim(line, frameChars)
	if strings.Trim(s, inputMarkers) == "" {
		return true
	}
	if optionLine.MatchString(s) || choiceToken.MatchString(s) || keyHint.MatchString(s) {
		return true
	}
	if strings.HasSuffix(s, "?") || strings.HasSuffix(s, "？") ||
		strings.HasSuffix(s, ":") || strings.HasSuffix(s, "：") {
		return true
	}
	for _, r := range c.rules {
		if r.scope == scopeWindow && r.re.MatchString(s) {
			return true
		}
	}
	return false
}

// window returns the trailing non-blank lines of text with escape sequences
// removed. ok is false when text had content but none of it is printable.
func (c *Classifier) window(text string) ([]string, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, true
	}

	clean := dedup.StripANSI(strings.ToValidUTF8(text, ""))
	if !hasPrintable(clean) {
		return nil, false
	}

	all := strings.Split(clean, "\n")
	lines := make([]string, 0, c.tailLines)
	for i := len(all) - 1; i >= 0 && len(lines) < c.tailLines; i-- {
		line := strings.TrimSpace(all[i])
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	// Collected newest first; restore reading order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, true
}

func hasPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) && unicode.IsPrint(r) {
			return true
		}
	}
	return false
}
