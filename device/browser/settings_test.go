package browser_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/device"
	"mobilepilot/device/browser"
)

var _ = Describe("Settings", func() {
	It("survives a round trip through the plugin map", func() {
		s := browser.Settings{
			BrowserType: "webkit",
			Headless:    false,
			Endpoint:    "ws://127.0.0.1:3000/pw",
			Apps:        map[string]string{"com.apple.mobilemail": "https://mail.example.com"},
			Viewport:    device.Size{Width: 390, Height: 844},
			Scale:       2.5,
		}

		got, err := browser.ParseSettings(s.Map())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(s))
	})

	It("defaults to headless and leaves unset fields zero", func() {
		got, err := browser.ParseSettings(map[string]string{"url": "ignored"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Headless).To(BeTrue())
		Expect(got.Viewport).To(Equal(device.Size{}))
		Expect(got.Apps).To(BeNil())
	})

	It("rejects malformed numbers", func() {
		_, err := browser.ParseSettings(map[string]string{browser.KeyWidth: "wide"})
		Expect(err).To(MatchError(ContainSubstring("width")))

		_, err = browser.ParseSettings(map[string]string{browser.KeyHeight: "-1"})
		Expect(err).To(MatchError(ContainSubstring("must not be negative")))

		_, err = browser.ParseSettings(map[string]string{browser.KeyHeadless: "maybe"})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults in New", func() {
		g := browser.New(browser.Settings{}, nil)
		Expect(g).NotTo(BeNil())
	})
})
