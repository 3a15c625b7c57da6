package device_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/device"
)

func blankPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("LabelScreenshot", func() {
	It("draws boxes scaled from points to pixels", func() {
		shot := blankPNG(300, 600)
		elems := []device.Element{{Index: 1, Bounds: device.Rect{X: 10, Y: 10, Width: 50, Height: 40}}}

		out, err := device.LabelScreenshot(shot, elems, device.Size{Width: 100, Height: 200}, 0)
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(300))

		// top-left corner of the box lands at (30, 30) after 3x scaling
		r, g, b, _ := img.At(31, 31).RGBA()
		Expect([]uint32{r >> 8, g >> 8, b >> 8}).To(Equal([]uint32{0, 200, 0}))
		r, _, _, _ = img.At(5, 5).RGBA()
		Expect(r >> 8).To(Equal(uint32(255)))
	})

	It("rejects non-PNG input", func() {
		_, err := device.LabelScreenshot([]byte("nope"), nil, device.DefaultWindowSize, 1)
		Expect(err).To(HaveOccurred())
	})

	It("derives the scale from the image width", func() {
		Expect(device.ScaleFor(1125, device.Size{Width: 375})).To(BeNumerically("~", 3.0, 0.001))
		Expect(device.ScaleFor(375, device.Size{Width: 375})).To(Equal(1.0))
		Expect(device.ScaleFor(1000, device.Size{})).To(Equal(1.0))
	})
})
