package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoAction is returned when a response carries no function call.
var ErrNoAction = errors.New("no function call in response")

var (
	reasoningRe  = regexp.MustCompile(`(?s)<REASONING>\s*(.*?)\s*</REASONING>`)
	assessmentRe = regexp.MustCompile(`(?s)<STATE_ASSESSMENT>\s*(.*?)\s*</STATE_ASSESSMENT>`)
	calledRe     = regexp.MustCompile(`(?s)<CALLED_FUNCTION>\s*(.*?)\s*</CALLED_FUNCTION>`)
	// ReAct style: "Action:" followed by a fenced block or a bare call
	reactFenceRe = regexp.MustCompile("(?s)Action:\\s*```(?:[a-zA-Z]*\\n)?\\s*(.*?)\\s*```")
	reactLineRe  = regexp.MustCompile(`(?m)Action:\s*([a-z_]+\(.*\))\s*$`)
	callRe       = regexp.MustCompile(`(?s)^([A-Za-z_]+)\s*\((.*)\)\s*;?$`)
	leadingZero  = regexp.MustCompile(`\b0+(\d)`)
)

// Parsed is the structured reading of an act-mode response.
type Parsed struct {
	Reasoning  string
	Assessment string
	Call       string
	Action     *Action
}

// ParseAction reads the tagged response format, falling back to the ReAct
// "Action:" block. Assessment is returned even when no call can be parsed.
func ParseAction(raw string) (*Parsed, error) {
	p := &Parsed{}
	if m := reasoningRe.FindStringSubmatch(raw); m != nil {
		p.Reasoning = m[1]
	}
	if m := assessmentRe.FindStringSubmatch(raw); m != nil {
		p.Assessment = m[1]
	}

	switch {
	case calledRe.MatchString(raw):
		p.Call = calledRe.FindStringSubmatch(raw)[1]
	case reactFenceRe.MatchString(raw):
		p.Call = reactFenceRe.FindStringSubmatch(raw)[1]
	case reactLineRe.MatchString(raw):
		p.Call = reactLineRe.FindStringSubmatch(raw)[1]
	}
	p.Call = firstCall(p.Call)
	if p.Call == "" {
		return p, ErrNoAction
	}

	action, err := ParseCall(p.Call)
	if err != nil {
		return p, err
	}
	p.Action = action
	return p, nil
}

// firstCall keeps the first non-empty, non-comment line of a block.
func firstCall(block string) string {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "`")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

// ParseCall parses a single call such as tap(5) or swipe(3, "up", dist="long").
func ParseCall(call string) (*Action, error) {
	call = strings.TrimSpace(call)
	m := callRe.FindStringSubmatch(call)
	if m == nil {
		return nil, fmt.Errorf("malformed call %q", call)
	}
	kind, ok := lookupKind(m[1])
	if !ok {
		return nil, fmt.Errorf("unknown function %q", m[1])
	}

	args, kwargs, err := splitArgs(m[2])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	arg := func(i int, name string) (string, bool) {
		if v, ok := kwargs[name]; ok {
			return v, true
		}
		if i < len(args) {
			return args[i], true
		}
		return "", false
	}
	intArg := func(i int, name string) (int, error) {
		v, ok := arg(i, name)
		if !ok {
			return 0, fmt.Errorf("%s: missing %s", kind, name)
		}
		n, err := strconv.Atoi(leadingZero.ReplaceAllString(v, "$1"))
		if err != nil {
			return 0, fmt.Errorf("%s: %s must be an integer, got %q", kind, name, v)
		}
		return n, nil
	}

	a := &Action{Kind: kind}
	switch kind {
	case ActionTap, ActionLongPress:
		if a.Index, err = intArg(0, "index"); err != nil {
			return nil, err
		}
	case ActionSwipe:
		if a.Index, err = intArg(0, "index"); err != nil {
			return nil, err
		}
		dir, ok := arg(1, "direction")
		if !ok {
			return nil, fmt.Errorf("swipe: missing direction")
		}
		a.Direction = strings.ToLower(dir)
		a.Distance, _ = arg(2, "dist")
		if a.Distance == "" {
			a.Distance = "medium"
		}
		a.Distance = strings.ToLower(a.Distance)
	case ActionText:
		if a.Text, ok = arg(0, "input_str"); !ok {
			return nil, fmt.Errorf("text: missing input_str")
		}
	case ActionWait:
		a.Seconds = 5
		if _, ok := arg(0, "interval"); ok {
			if a.Seconds, err = intArg(0, "interval"); err != nil {
				return nil, err
			}
		}
	case ActionFinish:
		a.Message, _ = arg(0, "message")
	case ActionLaunch:
		if a.App, ok = arg(0, "app"); !ok {
			return nil, fmt.Errorf("launch: missing app")
		}
	}
	return a, nil
}

// splitArgs tokenizes a call argument list into positional and keyword values.
func splitArgs(s string) ([]string, map[string]string, error) {
	var (
		args   []string
		kwargs = map[string]string{}
		cur    strings.Builder
		quote  rune
		quoted bool
	)
	flush := func() {
		v := cur.String()
		cur.Reset()
		if !quoted {
			v = strings.TrimSpace(v)
		}
		if v == "" && !quoted {
			return
		}
		if !quoted {
			if name, val, ok := strings.Cut(v, "="); ok && isIdent(strings.TrimSpace(name)) {
				kwargs[strings.TrimSpace(name)] = unquote(strings.TrimSpace(val))
				return
			}
		}
		args = append(args, v)
		quoted = false
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == '\\' && i+1 < len(runes) {
				i++
				cur.WriteRune(escaped(runes[i]))
				continue
			}
			if r == quote {
				quote = 0
				if !quoted {
					cur.WriteRune(r)
				}
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			if strings.TrimSpace(cur.String()) == "" {
				cur.Reset()
				quoted = true
			}
			if !quoted {
				cur.WriteRune(r)
			}
			quote = r
		case r == ',':
			flush()
		default:
			if quoted && !unicode.IsSpace(r) {
				return nil, nil, fmt.Errorf("unexpected %q after string", r)
			}
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, nil, fmt.Errorf("unterminated string")
	}
	flush()
	return args, kwargs, nil
}

func escaped(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	}
	return r
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
