package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/llm"
)

var _ = Describe("Images", func() {
	It("sniffs PNG bytes", func() {
		img := llm.NewImageBlock([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
		Expect(img.MediaType).To(Equal("image/png"))
		Expect(llm.DataURL(img)).To(HavePrefix("data:image/png;base64,iVBORw0KGgo"))
	})

	It("falls back to png for unknown content", func() {
		Expect(llm.NewImageBlock([]byte("plain text")).MediaType).To(Equal("image/png"))
	})

	It("detects data URLs and raw base64 signatures", func() {
		img := llm.DetectImage("data:image/jpg;base64,AAAA")
		Expect(img).NotTo(BeNil())
		Expect(img.MediaType).To(Equal("image/jpeg"))
		Expect(img.Data).To(Equal("AAAA"))

		Expect(llm.DetectImage("  /9j/4AAQ ").MediaType).To(Equal("image/jpeg"))
		Expect(llm.DetectImage("hello")).To(BeNil())
	})
})
