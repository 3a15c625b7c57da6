package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/llm"
)

var _ = Describe("OpenAIProvider", func() {
	var (
		server   *httptest.Server
		lastBody map[string]any
		reply    string
	)

	BeforeEach(func() {
		lastBody = nil
		reply = `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"qwen","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"<CALLED_FUNCTION>back()</CALLED_FUNCTION>"}}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("/chat/completions"))
			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &lastBody)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, reply)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends multimodal messages to a compatible endpoint", func() {
		p := llm.NewOpenAIProvider("EMPTY", server.URL+"/v1")
		img := llm.NewImageBlock([]byte("\x89PNG\r\n\x1a\n0000"))

		resp, err := p.Chat(context.Background(), &llm.ChatRequest{
			Model: "qwen",
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "system"),
				llm.NewMultimodalMessage(llm.RoleUser, llm.TextBlock("look"), llm.ImagePart(img)),
			},
			MaxTokens: 256,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Content).To(Equal("<CALLED_FUNCTION>back()</CALLED_FUNCTION>"))
		Expect(resp.Usage.InputTokens).To(Equal(12))
		Expect(resp.Usage.OutputTokens).To(Equal(5))

		Expect(lastBody["model"]).To(Equal("qwen"))
		msgs := lastBody["messages"].([]any)
		Expect(msgs).To(HaveLen(2))
		user := msgs[1].(map[string]any)
		parts := user["content"].([]any)
		Expect(parts).To(HaveLen(2))
		imagePart := parts[1].(map[string]any)["image_url"].(map[string]any)
		Expect(imagePart["url"]).To(HavePrefix("data:image/png;base64,"))
	})

	It("fails when the response carries no choices", func() {
		reply = `{"id":"cmpl-2","object":"chat.completion","created":1,"model":"qwen","choices":[]}`
		p := llm.NewOpenAIProvider("EMPTY", server.URL+"/v1")
		_, err := p.Chat(context.Background(), &llm.ChatRequest{
			Model:    "qwen",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		})
		Expect(err).To(MatchError(ContainSubstring("no choices")))
	})
})

var _ = Describe("NewProvider", func() {
	It("rejects unknown providers", func() {
		_, err := llm.NewProvider(context.Background(), "mystery", "", "")
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})

	It("defaults to openai", func() {
		p, err := llm.NewProvider(context.Background(), "", "k", "http://localhost:1/v1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&llm.OpenAIProvider{}))
	})
})
