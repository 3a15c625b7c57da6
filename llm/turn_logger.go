package llm

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

const contentPreviewMaxLen = 200

// TurnLogger writes one JSONL snapshot per model call.
type TurnLogger struct {
	mu        sync.Mutex
	file      *os.File
	turnCount int
}

// NewTurnLogger creates a turn logger that writes to the given file path.
func NewTurnLogger(filename string) (*TurnLogger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &TurnLogger{file: f}, nil
}

// Close closes the underlying file.
func (tl *TurnLogger) Close() {
	if tl.file != nil {
		tl.file.Close()
	}
}

type turnSnapshot struct {
	Turn         int               `json:"turn"`
	Timestamp    string            `json:"timestamp"`
	Action       string            `json:"action,omitempty"`
	MessageCount int               `json:"message_count"`
	Messages     []messageSnapshot `json:"messages"`
	Response     string            `json:"response,omitempty"`
	Error        string            `json:"error,omitempty"`
	InputTokens  int               `json:"input_tokens,omitempty"`
	OutputTokens int               `json:"output_tokens,omitempty"`
}

// messageSnapshot captures one message's shape without the image payload.
type messageSnapshot struct {
	Index          int    `json:"index"`
	Role           string `json:"role"`
	ContentPreview string `json:"content_preview,omitempty"`
	ContentLength  int    `json:"content_length"`
	ImageCount     int    `json:"image_count"`
	ImageMediaType string `json:"image_media_type,omitempty"`
	ImageBytes     int    `json:"image_bytes,omitempty"`
}

// LogTurn snapshots the request messages and the outcome as one JSONL line.
func (tl *TurnLogger) LogTurn(action string, messages []Message, resp *ChatResponse, callErr error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.turnCount++

	snap := turnSnapshot{
		Turn:         tl.turnCount,
		Timestamp:    time.Now().Format(time.RFC3339Nano),
		Action:       action,
		MessageCount: len(messages),
		Messages:     make([]messageSnapshot, len(messages)),
	}

	for i, msg := range messages {
		ms := messageSnapshot{Index: i, Role: string(msg.Role)}

		text := msg.GetTextContent()
		ms.ContentLength = len(text)
		ms.ContentPreview = preview(text)

		images := msg.Images()
		ms.ImageCount = len(images)
		if len(images) > 0 {
			ms.ImageMediaType = images[0].MediaType
			for _, img := range images {
				ms.ImageBytes += len(img.Data)
			}
		}

		snap.Messages[i] = ms
	}

	if resp != nil {
		snap.Response = preview(resp.Content)
		snap.InputTokens = resp.Usage.InputTokens
		snap.OutputTokens = resp.Usage.OutputTokens
	}
	if callErr != nil {
		snap.Error = callErr.Error()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	tl.file.WriteString(string(data) + "\n")
}

func preview(text string) string {
	if len(text) > contentPreviewMaxLen {
		return text[:contentPreviewMaxLen] + "..."
	}
	return text
}

// LoggingProvider records every Chat call made through the wrapped provider.
type LoggingProvider struct {
	Provider
	Logger *TurnLogger
	Action string
}

func (p *LoggingProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.Provider.Chat(ctx, req)
	if p.Logger != nil {
		p.Logger.LogTurn(p.Action, req.Messages, resp, err)
	}
	return resp, err
}
