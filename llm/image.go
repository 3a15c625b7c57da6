package llm

import (
	"encoding/base64"
	"net/http"
	"regexp"
	"strings"
)

var dataURLPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp);base64,(.+)$`)

// NewImageBlock wraps raw image bytes, sniffing the media type from the content.
func NewImageBlock(data []byte) *ImageBlock {
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}
	return &ImageBlock{
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
	}
}

// DetectImage checks if a string contains base64-encoded image data.
// Returns nil if no image is detected.
func DetectImage(s string) *ImageBlock {
	s = strings.TrimSpace(s)

	if matches := dataURLPattern.FindStringSubmatch(s); matches != nil {
		mediaType := "image/" + matches[1]
		if matches[1] == "jpg" {
			mediaType = "image/jpeg"
		}
		return &ImageBlock{Data: matches[2], MediaType: mediaType}
	}

	// base64 forms of the PNG, JPEG and GIF file signatures
	switch {
	case strings.HasPrefix(s, "iVBORw0KGgo"):
		return &ImageBlock{Data: s, MediaType: "image/png"}
	case strings.HasPrefix(s, "/9j/"):
		return &ImageBlock{Data: s, MediaType: "image/jpeg"}
	case strings.HasPrefix(s, "R0lGOD"):
		return &ImageBlock{Data: s, MediaType: "image/gif"}
	}
	return nil
}

// DataURL renders an image block as a data: URL.
func DataURL(img *ImageBlock) string {
	return "data:" + img.MediaType + ";base64," + img.Data
}

func imageSubtype(mediaType string) string {
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		return mediaType[i+1:]
	}
	return mediaType
}
