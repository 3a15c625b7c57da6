package device_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/device"
)

var _ = Describe("Geometry", func() {
	size := device.Size{Width: 400, Height: 800}

	DescribeTable("SwipeEnd",
		func(dir device.Direction, dist device.Distance, want device.Point) {
			Expect(device.SwipeEnd(device.Point{X: 200, Y: 400}, dir, dist, size)).To(Equal(want))
		},
		Entry("up medium", device.DirectionUp, device.DistanceMedium, device.Point{X: 200, Y: 0}),
		Entry("down short", device.DirectionDown, device.DistanceShort, device.Point{X: 200, Y: 640}),
		Entry("left long clamps", device.DirectionLeft, device.DistanceLong, device.Point{X: 0, Y: 400}),
		Entry("right short", device.DirectionRight, device.DistanceShort, device.Point{X: 320, Y: 400}),
		Entry("down long clamps", device.DirectionDown, device.DistanceLong, device.Point{X: 200, Y: 799}),
	)

	It("drags back from the left edge at mid height", func() {
		from, to := device.BackGesture(device.Size{Width: 375, Height: 812})
		Expect(from).To(Equal(device.Point{X: 0, Y: 406}))
		Expect(to).To(Equal(device.Point{X: 125, Y: 406}))
	})

	It("parses directions and distances", func() {
		d, err := device.ParseDirection(" UP ")
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(device.DirectionUp))
		_, err = device.ParseDirection("sideways")
		Expect(err).To(HaveOccurred())

		dist, err := device.ParseDistance("")
		Expect(err).NotTo(HaveOccurred())
		Expect(dist).To(Equal(device.DistanceMedium))
		_, err = device.ParseDistance("far")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Apps", func() {
	It("resolves names to bundle ids", func() {
		Expect(device.BundleID("Mail")).To(Equal(device.MailBundleID))
		Expect(device.BundleID("com.example.app")).To(Equal("com.example.app"))
	})

	It("matches the foreground app leniently", func() {
		Expect(device.IsApp("com.apple.mobilemail", device.MailBundleID)).To(BeTrue())
		Expect(device.IsApp("com.apple.mobilemail.compose", device.MailBundleID)).To(BeTrue())
		Expect(device.IsApp("com.google.gmail", device.MailBundleID)).To(BeTrue())
		Expect(device.IsApp("com.apple.springboard", device.MailBundleID)).To(BeFalse())
		Expect(device.IsApp("", device.MailBundleID)).To(BeFalse())
	})
})
