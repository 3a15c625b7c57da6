package device_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/device"
)

const inboxSource = `<?xml version="1.0" encoding="UTF-8"?>
<XCUIElementTypeApplication type="XCUIElementTypeApplication" name="Mail" enabled="true" visible="true" x="0" y="0" width="375" height="812">
  <XCUIElementTypeNavigationBar name="Inbox" enabled="true" visible="true" x="0" y="44" width="375" height="96">
    <XCUIElementTypeButton name="Mailboxes" label="Mailboxes" enabled="true" visible="true" x="0" y="47" width="110" height="44"/>
    <XCUIElementTypeButton name="Edit" label="Edit" enabled="true" visible="true" x="315" y="47" width="52" height="44"/>
  </XCUIElementTypeNavigationBar>
  <XCUIElementTypeTable enabled="true" visible="true" x="0" y="140" width="375" height="600">
    <XCUIElementTypeCell name="Alice, Quarterly numbers" enabled="true" visible="true" x="0" y="140" width="375" height="90">
      <XCUIElementTypeStaticText label="Quarterly numbers" enabled="true" visible="true" x="2" y="142" width="371" height="86"/>
    </XCUIElementTypeCell>
    <XCUIElementTypeCell name="Bob" enabled="false" visible="true" x="0" y="230" width="375" height="90"/>
    <XCUIElementTypeCell name="Carol" enabled="true" visible="false" x="0" y="320" width="375" height="90"/>
    <XCUIElementTypeCell name="Dave" enabled="true" visible="true" bounds="{{0, 410}, {375, 90}}"/>
    <XCUIElementTypeCell name="Ghost" enabled="true" visible="true" x="0" y="0" width="0" height="0"/>
  </XCUIElementTypeTable>
</XCUIElementTypeApplication>`

var _ = Describe("ParseElements", func() {
	It("keeps enabled, visible, sized interactive nodes in document order", func() {
		elems, err := device.ParseElements(inboxSource)
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, e := range elems {
			names = append(names, e.Name)
		}
		Expect(names).To(Equal([]string{"Mailboxes", "Edit", "Alice, Quarterly numbers", "Dave"}))
		for i, e := range elems {
			Expect(e.Index).To(Equal(i + 1))
		}
	})

	It("matches element types exactly", func() {
		src := `<XCUIElementTypeApplication name="Mail" x="0" y="0" width="375" height="812">
  <XCUIElementTypeTabBar name="Tabs" x="0" y="730" width="375" height="82">
    <XCUIElementTypeTab name="Inbox" x="0" y="730" width="120" height="82"/>
  </XCUIElementTypeTabBar>
  <XCUIElementTypeTabGroup name="Group" x="0" y="200" width="375" height="40"/>
  <XCUIElementTypeTable name="List" x="0" y="300" width="375" height="400"/>
</XCUIElementTypeApplication>`
		elems, err := device.ParseElements(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(elems).To(HaveLen(1))
		Expect(elems[0].Type).To(Equal("XCUIElementTypeTab"))
		Expect(elems[0].Name).To(Equal("Inbox"))
	})

	It("merges elements whose centres are within a few points", func() {
		elems, err := device.ParseElements(inboxSource)
		Expect(err).NotTo(HaveOccurred())
		for _, e := range elems {
			Expect(e.Label).NotTo(Equal("Quarterly numbers"))
		}
	})

	It("reads the braced bounds format", func() {
		elems, err := device.ParseElements(inboxSource)
		Expect(err).NotTo(HaveOccurred())
		dave := elems[3]
		Expect(dave.Bounds).To(Equal(device.Rect{X: 0, Y: 410, Width: 375, Height: 90}))
		Expect(dave.Center()).To(Equal(device.Point{X: 187, Y: 455}))
	})

	It("prefixes the parent id in uids", func() {
		elems, err := device.ParseElements(inboxSource)
		Expect(err).NotTo(HaveOccurred())
		Expect(elems[0].UID).To(Equal("XCUIElementTypeNavigationBar_Inbox_XCUIElementTypeButton_Mailboxes"))
	})

	It("returns nothing for an empty source and an error for broken XML", func() {
		elems, err := device.ParseElements("  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(elems).To(BeEmpty())

		_, err = device.ParseElements("<XCUIElementTypeApplication>")
		Expect(err).To(HaveOccurred())
	})

	It("looks elements up by 1-based index", func() {
		elems, _ := device.ParseElements(inboxSource)
		e, err := device.ElementAt(elems, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Name).To(Equal("Edit"))

		_, err = device.ElementAt(elems, 0)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
		_, err = device.ElementAt(elems, 5)
		Expect(err).To(HaveOccurred())
	})

	It("describes elements for the prompt", func() {
		elems, _ := device.ParseElements(inboxSource)
		Expect(elems[0].Describe()).To(Equal(`[1] Button "Mailboxes"`))
		Expect(device.DescribeElements(elems[:2])).To(Equal("[1] Button \"Mailboxes\"\n[2] Button \"Edit\"\n"))
	})
})

var _ = Describe("ParseBounds", func() {
	DescribeTable("formats",
		func(in string, want device.Rect, ok bool) {
			got, gotOK := device.ParseBounds(in)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("braced", "{{10, 20}, {30, 40}}", device.Rect{X: 10, Y: 20, Width: 30, Height: 40}, true),
		Entry("flat with floats", "1.5,2,3.9,4", device.Rect{X: 1, Y: 2, Width: 3, Height: 4}, true),
		Entry("too short", "{{1, 2}}", device.Rect{}, false),
		Entry("garbage", "a,b,c,d", device.Rect{}, false),
	)
})
