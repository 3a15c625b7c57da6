// Package agent wraps a vision-language model behind the Oracle interface:
// act mode proposes the next UI action, extract mode reads email fields
// from a screenshot.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"mobilepilot/agent/internal/prompts"
	"mobilepilot/device"
	"mobilepilot/llm"
)

type Mode string

const (
	ModeAct     Mode = "act"
	ModeExtract Mode = "extract"
)

type Variant = prompts.Variant

const (
	VariantOpenAI = prompts.VariantOpenAI
	VariantQwenVL = prompts.VariantQwenVL
)

// ParseVariant accepts the configured agent type; empty means openai.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "openai", "openaiagent":
		return VariantOpenAI, nil
	case "qwen_vl", "qwen", "qwenvl", "qwenvlagent":
		return VariantQwenVL, nil
	}
	return "", fmt.Errorf("unknown agent type %q (expected openai or qwen_vl)", s)
}

// Request is one oracle call. Images are raw PNG/JPEG bytes; the last one is
// the current screen.
type Request struct {
	Mode        Mode
	Task        string
	Instruction string
	Images      [][]byte
	Elements    []device.Element
	History     []string
}

// Response carries the raw text plus whichever structured form the mode asks for.
// ParseErr is set when the text could not be turned into that form; the raw
// text is still returned so it can be traced.
type Response struct {
	Raw        string
	Reasoning  string
	Assessment string
	Call       string
	Action     *Action
	Extraction *Extraction
	ParseErr   error
	Usage      llm.Usage
}

// Oracle is a synchronous request/response boundary to a model.
type Oracle interface {
	Query(ctx context.Context, req Request) (*Response, error)
}

// LLMOracle implements Oracle on an llm.Provider.
type LLMOracle struct {
	provider    llm.Provider
	model       string
	variant     Variant
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      hclog.Logger
}

var _ Oracle = (*LLMOracle)(nil)

type Option func(*LLMOracle)

func WithVariant(v Variant) Option {
	return func(o *LLMOracle) { o.variant = v }
}

func WithMaxTokens(n int) Option {
	return func(o *LLMOracle) { o.maxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(o *LLMOracle) { o.temperature = t }
}

// WithTimeout bounds each call; zero leaves the caller's context alone.
func WithTimeout(d time.Duration) Option {
	return func(o *LLMOracle) { o.timeout = d }
}

func WithLogger(l hclog.Logger) Option {
	return func(o *LLMOracle) { o.logger = l }
}

func NewLLMOracle(provider llm.Provider, model string, opts ...Option) *LLMOracle {
	o := &LLMOracle{
		provider:  provider,
		model:     model,
		variant:   VariantOpenAI,
		maxTokens: 1024,
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *LLMOracle) Query(ctx context.Context, req Request) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var messages []llm.Message
	switch req.Mode {
	case ModeAct:
		messages = o.actMessages(req)
	case ModeExtract:
		messages = o.extractMessages(req)
	default:
		return nil, fmt.Errorf("unknown oracle mode %q", req.Mode)
	}

	start := time.Now()
	chat, err := o.provider.Chat(ctx, &llm.ChatRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", req.Mode, err)
	}
	o.logger.Debug("oracle reply", "mode", req.Mode, "elapsed", time.Since(start), "output_tokens", chat.Usage.OutputTokens)

	resp := &Response{Raw: chat.Content, Usage: chat.Usage}
	switch req.Mode {
	case ModeAct:
		parsed, perr := ParseAction(chat.Content)
		resp.Reasoning = parsed.Reasoning
		resp.Assessment = parsed.Assessment
		resp.Call = parsed.Call
		resp.Action = parsed.Action
		resp.ParseErr = perr
	case ModeExtract:
		resp.Extraction, resp.ParseErr = ParseExtraction(chat.Content)
	}
	return resp, nil
}

func (o *LLMOracle) actMessages(req Request) []llm.Message {
	var sb strings.Builder
	sb.WriteString(req.Instruction)
	sb.WriteString("\nHistory Information:\n")
	if len(req.History) == 0 {
		sb.WriteString("[]")
	} else {
		sb.WriteString(strings.Join(req.History, "\n"))
	}
	if len(req.Elements) > 0 {
		sb.WriteString("\nLabeled Elements:\n")
		sb.WriteString(strings.TrimRight(device.DescribeElements(req.Elements), "\n"))
	}
	sb.WriteString("\nCurrent Information: <image>")

	return []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, prompts.ActSystemPrompt(o.variant, req.Task)),
		userMessage(sb.String(), req.Images),
	}
}

func (o *LLMOracle) extractMessages(req Request) []llm.Message {
	instruction := req.Instruction
	if instruction == "" {
		instruction = prompts.ExtractPrompt()
	}
	return []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, prompts.ExtractSystemPrompt()),
		userMessage(instruction, req.Images),
	}
}

func userMessage(text string, images [][]byte) llm.Message {
	parts := []llm.ContentBlock{llm.TextBlock(text)}
	for _, img := range images {
		parts = append(parts, llm.ImagePart(llm.NewImageBlock(img)))
	}
	return llm.NewMultimodalMessage(llm.RoleUser, parts...)
}

// ExtractInstruction is the fixed extraction prompt, exposed for callers that
// key caches on the instruction text.
func ExtractInstruction() string {
	return prompts.ExtractPrompt()
}
