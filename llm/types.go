package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType identifies the type of content in a ContentBlock
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// ImageBlock represents base64-encoded image data
type ImageBlock struct {
	Data      string // Base64-encoded data (without data URL prefix)
	MediaType string // MIME type: "image/png", "image/jpeg", "image/gif", "image/webp"
}

// ContentBlock represents a single piece of content (text or image)
type ContentBlock struct {
	Type      ContentType
	Text      string      // Used when Type == ContentTypeText
	ImageData *ImageBlock // Used when Type == ContentTypeImage
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ImagePart returns an image content block.
func ImagePart(img *ImageBlock) ContentBlock {
	return ContentBlock{Type: ContentTypeImage, ImageData: img}
}

// Message represents a conversation message with optional multimodal content
type Message struct {
	Role    Role
	Content string         // Simple text content
	Parts   []ContentBlock // Multimodal content blocks (takes precedence over Content if non-empty)
}

// HasParts returns true if the message has multimodal content blocks
func (m Message) HasParts() bool {
	return len(m.Parts) > 0
}

// GetTextContent returns the text content of the message
// If Parts is set, concatenates all text parts; otherwise returns Content
func (m Message) GetTextContent() string {
	if !m.HasParts() {
		return m.Content
	}
	var text string
	for _, part := range m.Parts {
		if part.Type == ContentTypeText {
			text += part.Text
		}
	}
	return text
}

// Images returns the image blocks carried by the message.
func (m Message) Images() []*ImageBlock {
	var images []*ImageBlock
	for _, part := range m.Parts {
		if part.Type == ContentTypeImage && part.ImageData != nil {
			images = append(images, part.ImageData)
		}
	}
	return images
}

// NewTextMessage creates a simple text-only message
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// NewMultimodalMessage creates a message with multiple content blocks
func NewMultimodalMessage(role Role, parts ...ContentBlock) Message {
	return Message{Role: role, Parts: parts}
}

type ChatRequest struct {
	Model         string
	Messages      []Message
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

type ChatResponse struct {
	ID           string
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int

	// OpenAI: tokens served from cache (prompt_tokens_details.cached_tokens)
	CachedTokens int
}

// Provider is a synchronous chat completion backend.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
