package recall

import (
	"fmt"
	"strings"

	"github.com/hurttlocker/recall/internal/textnorm"
)

// Subject is what an interaction is about.
type Subject string

const (
	SubjectSecondMind Subject = "SecondMind"
	SubjectSetup      Subject = "Setup"
	SubjectScript     Subject = "Script"
	SubjectFile       Subject = "File"
	SubjectGeneral    Subject = "General"
	SubjectUnknown    Subject = "Unknown"
)

// Action is what the user wants done.
type Action string

const (
	ActionDo      Action = "Do"
	ActionThink   Action = "Think"
	ActionSpeak   Action = "Speak"
	ActionCode    Action = "Code"
	ActionDebug   Action = "Debug"
	ActionUnknown Action = "Unknown"
)

// Category is the finer-grained kind of request.
type Category string

const (
	CategoryPlan      Category = "Plan"
	CategoryTest      Category = "Test"
	CategoryConfigure Category = "Configure"
	CategoryDocument  Category = "Document"
	CategoryAnalyze   Category = "Analyze"
	CategoryDefine    Category = "Define"
	CategoryCompare   Category = "Compare"
	CategoryAsk       Category = "Ask"
	CategoryConfirm   Category = "Confirm"
	CategoryGreet     Category = "Greet"
	CategoryAgent     Category = "Agent"
	CategorySystem    Category = "System"
	CategoryBackend   Category = "Backend"
	CategoryOther     Category = "Other"
	CategoryUnknown   Category = "Unknown"
)

var (
	subjects   = []Subject{SubjectSecondMind, SubjectSetup, SubjectScript, SubjectFile, SubjectGeneral}
	actions    = []Action{ActionDo, ActionThink, ActionSpeak, ActionCode, ActionDebug}
	categories = []Category{
		CategoryPlan, CategoryTest, CategoryConfigure, CategoryDocument, CategoryAnalyze,
		CategoryDefine, CategoryCompare, CategoryAsk, CategoryConfirm, CategoryGreet,
		CategoryAgent, CategorySystem, CategoryBackend, CategoryOther,
	}
)

// ParseSubject matches s against the subject vocabulary ignoring case and
// accents. Anything else is SubjectUnknown.
func ParseSubject(s string) Subject {
	return match(s, subjects, SubjectUnknown)
}

// ParseAction matches s against the action vocabulary.
func ParseAction(s string) Action {
	return match(s, actions, ActionUnknown)
}

// ParseCategory matches s against the category vocabulary.
func ParseCategory(s string) Category {
	return match(s, categories, CategoryUnknown)
}

func match[T ~string](s string, vocab []T, unknown T) T {
	want := textnorm.Fold(s)
	for _, v := range vocab {
		if textnorm.Fold(string(v)) == want {
			return v
		}
	}
	return unknown
}

// Intent is the classifier's reading of the current prompt.
type Intent struct {
	Prompt   string
	Subject  Subject
	Action   Action
	Category Category
}

// NewIntent parses the three labels tolerantly. The prompt is required.
func NewIntent(prompt, subject, action, category string) (*Intent, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("intent prompt cannot be empty")
	}
	return &Intent{
		Prompt:   prompt,
		Subject:  ParseSubject(subject),
		Action:   ParseAction(action),
		Category: ParseCategory(category),
	}, nil
}
