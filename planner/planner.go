package planner

import (
	"fmt"
	"strings"
)

// Outcome is what the planner sees of a finished round.
type Outcome struct {
	Index    int    `json:"index"`
	Stage    Stage  `json:"stage"`
	Action   string `json:"action,omitempty"`
	OK       bool   `json:"ok"`
	Progress bool   `json:"progress"`
	// InItemView is the runner's belief that the screen shows an opened
	// item rather than the list.
	InItemView bool   `json:"in_item_view"`
	Fault      string `json:"fault,omitempty"`
}

// Instruction is one round's sub-goal. Step is the bare micro-instruction;
// Prompt wraps it with the goal, progress and rules for the model.
type Instruction struct {
	Stage  Stage  `json:"stage"`
	Key    string `json:"key"`
	Step   string `json:"step"`
	Prompt string `json:"prompt"`
	// Forced is set when the planner overrides the stage's own step.
	Forced      bool `json:"forced,omitempty"`
	AllowFinish bool `json:"allow_finish,omitempty"`
}

// Planner picks the next instruction. Implementations must not do I/O.
type Planner interface {
	Goal(target int) string
	Next(state State, recent []Outcome) Instruction
}

const (
	KeyOpenApp      = "open_app"
	KeyEnterList    = "go_list"
	KeySelectItems  = "scan_top"
	KeyOpenItem     = "enter_next_item"
	KeyViewItem     = "view_item"
	KeyReturnToList = "back_to_list"
	KeyFinish       = "finish"
)

// MailPlanner issues the open/view/return micro-steps for a mail client.
type MailPlanner struct {
	App string
}

var _ Planner = (*MailPlanner)(nil)

func NewMailPlanner(app string) *MailPlanner {
	if app == "" {
		app = "Mail"
	}
	return &MailPlanner{App: app}
}

// Goal is the one-paragraph overview used as the task description.
func (p *MailPlanner) Goal(target int) string {
	return fmt.Sprintf("Open %s app, go to the inbox/mail list, then sequentially open the %s most recent "+
		"emails (top rows). Enter an email, view its content, return to the list, and continue "+
		"until %s emails have been opened.", p.App, countWord(target), countWord(target))
}

func (p *MailPlanner) Next(state State, recent []Outcome) Instruction {
	key := stageKeys[state.Stage]
	if state.TargetReached() || state.Stage == StageDone {
		key = KeyFinish
	}
	in := Instruction{Stage: state.Stage, Key: key}

	// An open attempted while an item is still showing would tap inside the
	// item; go back first.
	if state.Stage == StageOpenItem && len(recent) > 0 && recent[len(recent)-1].InItemView {
		in.Key = KeyReturnToList
		in.Forced = true
	}

	in.Step = p.step(in.Key, state.Target)
	in.AllowFinish = in.Key == KeyFinish
	in.Prompt = p.wrap(state, in)
	return in
}

var stageKeys = map[Stage]string{
	StageOpenApp:      KeyOpenApp,
	StageEnterList:    KeyEnterList,
	StageSelectItems:  KeySelectItems,
	StageOpenItem:     KeyOpenItem,
	StageViewItem:     KeyViewItem,
	StageReturnToList: KeyReturnToList,
	StageDone:         KeyFinish,
}

func (p *MailPlanner) step(key string, target int) string {
	switch key {
	case KeyOpenApp:
		s := fmt.Sprintf("Find the %s app icon on the current screen. ", p.App)
		if strings.EqualFold(p.App, "Mail") {
			s += "The Mail icon is typically blue (light blue or sky blue background) with a white envelope symbol. " +
				"It may show the text 'Mail' or '邮件' below it. "
		}
		return s + fmt.Sprintf("Tap it to open the %s app.", p.App)
	case KeyEnterList:
		return fmt.Sprintf("Inside %s app, navigate to the main inbox or mail list (usually the default view when opening %s). ", p.App, p.App) +
			"If you see a list of emails, you are already in the inbox. If you are already on the mail list, do nothing extra."
	case KeySelectItems:
		return fmt.Sprintf("On the mail list/inbox, visually identify the top rows. Count the most recent emails from the top "+
			"and memorize the first %s unique emails. Do NOT tap any email in this step.", countWord(target))
	case KeyOpenItem:
		return fmt.Sprintf("Tap ONE email among the top %s recent emails that you have NOT opened yet in this task. ", countWord(target)) +
			"IMPORTANT: Choose a DIFFERENT email from the ones you have already opened. " +
			"After opening, stay inside the email content view for this step; do NOT go back in the same round."
	case KeyViewItem:
		return "You are inside an email. Read its content; if the body is cut off, swipe up once to see more. " +
			"Do NOT go back in this step."
	case KeyReturnToList:
		return "If inside an email's content view, tap the back button to return to the inbox/list so you can open the next email. " +
			"If already on the mail list, do nothing."
	case KeyFinish:
		return fmt.Sprintf("YOU MAY FINISH NOW. Report how many recent emails you opened (target: %d). Then call finish().", target)
	}
	return ""
}

func (p *MailPlanner) wrap(state State, in Instruction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall goal: In %s app inbox/list, identify the %s most recent emails at the top of the list "+
		"and open them ONE BY ONE (open -> view content -> go back -> continue) until %s have been opened.\n",
		p.App, countWord(state.Target), countWord(state.Target))
	sb.WriteString(state.ProgressLine())
	sb.WriteString("IMPORTANT: Do NOT open the same email twice. Each email should only be opened once. " +
		"If you are currently viewing an email's content, you must go back to the list before opening the next one.\n")
	sb.WriteString("Rules: Only perform the [Single step goal] for THIS round. Execute exactly ONE action per round. " +
		"Do NOT use any search bar; rely on the visible mail list order. ")
	if !in.AllowFinish {
		sb.WriteString("Do NOT call finish() unless explicitly instructed with 'YOU MAY FINISH NOW'.")
	}
	sb.WriteString("\nSingle step goal: ")
	sb.WriteString(in.Step)
	return sb.String()
}

var numberWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}

func countWord(n int) string {
	if n >= 0 && n < len(numberWords) {
		return numberWords[n]
	}
	return fmt.Sprint(n)
}
