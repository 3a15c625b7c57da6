package agent_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/agent"
	"mobilepilot/device"
	"mobilepilot/llm"
)

type recordingProvider struct {
	reply string
	err   error
	last  *llm.ChatRequest
}

func (p *recordingProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.reply}, nil
}

var _ = Describe("LLMOracle", func() {
	png := []byte("\x89PNG\r\n\x1a\n")

	It("builds an act request with history, elements and the screenshot", func() {
		p := &recordingProvider{reply: "<STATE_ASSESSMENT>inbox</STATE_ASSESSMENT><CALLED_FUNCTION>tap(1)</CALLED_FUNCTION>"}
		o := agent.NewLLMOracle(p, "qwen-vl", agent.WithMaxTokens(512))

		resp, err := o.Query(context.Background(), agent.Request{
			Mode:        agent.ModeAct,
			Task:        "Read five emails",
			Instruction: "Open the first unread email.",
			Images:      [][]byte{png},
			Elements:    []device.Element{{Index: 1, Type: "XCUIElementTypeCell", Label: "Alice"}},
			History:     []string{"earlier"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ParseErr).NotTo(HaveOccurred())
		Expect(resp.Action.Kind).To(Equal(agent.ActionTap))
		Expect(resp.Assessment).To(Equal("inbox"))

		Expect(p.last.Model).To(Equal("qwen-vl"))
		Expect(p.last.MaxTokens).To(Equal(512))
		Expect(p.last.Messages).To(HaveLen(2))
		Expect(p.last.Messages[0].Content).To(ContainSubstring("Task Instruction: Read five emails"))
		user := p.last.Messages[1]
		Expect(user.GetTextContent()).To(ContainSubstring("Open the first unread email."))
		Expect(user.GetTextContent()).To(ContainSubstring("History Information:\nearlier"))
		Expect(user.GetTextContent()).To(ContainSubstring(`[1] Cell "Alice"`))
		Expect(user.Images()).To(HaveLen(1))
	})

	It("uses the ReAct prompt for qwen_vl", func() {
		p := &recordingProvider{reply: "Action: back()"}
		o := agent.NewLLMOracle(p, "m", agent.WithVariant(agent.VariantQwenVL))
		resp, err := o.Query(context.Background(), agent.Request{Mode: agent.ModeAct, Instruction: "go back"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Action.Kind).To(Equal(agent.ActionBack))
		Expect(p.last.Messages[0].Content).To(ContainSubstring("Obs, Thought and Action"))
	})

	It("reports unparsable replies without failing the call", func() {
		p := &recordingProvider{reply: "I cannot see the screen."}
		o := agent.NewLLMOracle(p, "m")
		resp, err := o.Query(context.Background(), agent.Request{Mode: agent.ModeAct, Instruction: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ParseErr).To(MatchError(agent.ErrNoAction))
		Expect(resp.Raw).To(Equal("I cannot see the screen."))
	})

	It("returns transport errors", func() {
		p := &recordingProvider{err: errors.New("connection refused")}
		o := agent.NewLLMOracle(p, "m")
		_, err := o.Query(context.Background(), agent.Request{Mode: agent.ModeExtract, Images: [][]byte{png}})
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	It("sends the fixed extraction instruction", func() {
		p := &recordingProvider{reply: `{"sender":"A","subject":"B"}`}
		o := agent.NewLLMOracle(p, "m")
		resp, err := o.Query(context.Background(), agent.Request{Mode: agent.ModeExtract, Images: [][]byte{png}})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Extraction.Subject).To(Equal("B"))
		Expect(p.last.Messages[1].GetTextContent()).To(Equal(agent.ExtractInstruction()))
	})

	It("parses agent types", func() {
		v, err := agent.ParseVariant("QWEN_VL")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(agent.VariantQwenVL))
		_, err = agent.ParseVariant("gpt")
		Expect(err).To(HaveOccurred())
	})
})
