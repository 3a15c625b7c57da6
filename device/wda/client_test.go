package wda_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/device"
	"mobilepilot/device/wda"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeWDA serves the subset of WebDriverAgent the client uses.
type fakeWDA struct {
	mu            sync.Mutex
	requests      []recorded
	sessionInBody bool
	sessionFails  bool
	sourceFails   int
	sourceShape   string
}

func (f *fakeWDA) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			json.Unmarshal(data, &body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: body})
		sourceFails := f.sourceFails
		f.mu.Unlock()

		switch {
		case r.URL.Path == "/status":
			write(w, map[string]any{"value": map[string]any{"ready": true, "message": "WebDriverAgent is ready"}, "sessionId": "s-status"})
		case r.URL.Path == "/session" && r.Method == http.MethodPost:
			if f.sessionFails {
				http.Error(w, "no", http.StatusInternalServerError)
				return
			}
			if f.sessionInBody {
				write(w, map[string]any{"value": map[string]any{"sessionId": "abc"}})
			} else {
				write(w, map[string]any{"sessionId": "abc", "value": map[string]any{}})
			}
		case r.URL.Path == "/session/abc/screenshot" || r.URL.Path == "/screenshot":
			write(w, map[string]any{"value": base64.StdEncoding.EncodeToString([]byte("png-bytes"))})
		case r.URL.Path == "/session/abc/source":
			if sourceFails > 0 {
				f.mu.Lock()
				f.sourceFails--
				f.mu.Unlock()
				http.Error(w, "missing", http.StatusNotFound)
				return
			}
			fallthrough
		case r.URL.Path == "/source":
			switch f.sourceShape {
			case "nested":
				write(w, map[string]any{"value": map[string]any{"source": "<XCUIElementTypeApplication/>"}})
			case "bare":
				io.WriteString(w, "<XCUIElementTypeApplication/>")
			default:
				write(w, map[string]any{"value": "<XCUIElementTypeApplication/>"})
			}
		case r.URL.Path == "/wda/activeAppInfo":
			write(w, map[string]any{"value": map[string]any{"bundleId": "com.apple.mobilemail", "pid": 42}})
		case r.URL.Path == "/session/abc/window/size":
			write(w, map[string]any{"value": map[string]any{"width": 390, "height": 844}})
		default:
			write(w, map[string]any{"value": nil})
		}
	})
	return mux
}

func (f *fakeWDA) posts(path string) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorded
	for _, r := range f.requests {
		if r.Method == http.MethodPost && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

var _ = Describe("Client", func() {
	var (
		fake   *fakeWDA
		server *httptest.Server
		client *wda.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeWDA{}
		server = httptest.NewServer(fake.handler())
		client = wda.New(server.URL+"/", wda.WithRetryMax(0))
	})

	AfterEach(func() {
		server.Close()
	})

	It("probes /status", func() {
		st, err := client.Probe(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Ready).To(BeTrue())
		Expect(st.Message).To(Equal("WebDriverAgent is ready"))
	})

	It("reads the session id from the top level or from value", func() {
		id, err := client.StartSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("abc"))

		fake.sessionInBody = true
		other := wda.New(server.URL)
		id, err = other.StartSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("abc"))
	})

	It("starts a session lazily and only once", func() {
		_, err := client.Screenshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Screenshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.posts("/session")).To(HaveLen(1))
	})

	It("decodes screenshots", func() {
		data, err := client.Screenshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("png-bytes"))
	})

	It("falls back to session-less endpoints when no session can be made", func() {
		fake.sessionFails = true
		data, err := client.Screenshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("png-bytes"))
	})

	DescribeTable("unwraps every source shape",
		func(shape string) {
			fake.sourceShape = shape
			src, err := client.Source(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(src).To(Equal("<XCUIElementTypeApplication/>"))
		},
		Entry("string value", ""),
		Entry("nested source", "nested"),
		Entry("bare xml", "bare"),
	)

	It("retries the bare /source endpoint when the session one fails", func() {
		fake.sourceFails = 1
		src, err := client.Source(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(src).To(ContainSubstring("XCUIElementTypeApplication"))
	})

	It("reports the active bundle and window size", func() {
		app, err := client.ActiveApp(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(app).To(Equal("com.apple.mobilemail"))

		size, err := client.WindowSize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(Equal(device.Size{Width: 390, Height: 844}))
	})

	It("posts a W3C pointer action for taps", func() {
		Expect(client.Tap(ctx, device.Point{X: 10, Y: 20})).To(Succeed())
		posts := fake.posts("/session/abc/actions")
		Expect(posts).To(HaveLen(1))
		actions := posts[0].Body["actions"].([]any)[0].(map[string]any)["actions"].([]any)
		move := actions[0].(map[string]any)
		Expect(move["x"]).To(BeNumerically("==", 10))
		Expect(move["y"]).To(BeNumerically("==", 20))
	})

	It("navigates back with a left edge drag", func() {
		Expect(client.Back(ctx)).To(Succeed())
		posts := fake.posts("/session/abc/wda/dragfromtoforduration")
		Expect(posts).To(HaveLen(1))
		body := posts[0].Body
		Expect(body["fromX"]).To(BeNumerically("==", 0))
		Expect(body["fromY"]).To(BeNumerically("==", 422))
		Expect(body["toX"]).To(BeNumerically("==", 130))
		Expect(body["duration"]).To(BeNumerically("~", 0.3, 0.001))
	})

	It("launches apps and goes home", func() {
		Expect(client.Launch(ctx, "com.apple.mobilemail")).To(Succeed())
		Expect(fake.posts("/session/abc/wda/apps/launch")[0].Body["bundleId"]).To(Equal("com.apple.mobilemail"))
		Expect(client.Home(ctx)).To(Succeed())
		Expect(fake.posts("/wda/homescreen")).To(HaveLen(1))
	})

	It("types text character by character", func() {
		Expect(client.TypeText(ctx, "hé")).To(Succeed())
		Expect(fake.posts("/session/abc/wda/keys")[0].Body["value"]).To(Equal([]any{"h", "é"}))
	})

	It("surfaces HTTP failures as StatusError", func() {
		fake.sessionFails = true
		_, err := client.StartSession(ctx)
		Expect(err).To(HaveOccurred())
		var se *wda.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusInternalServerError))
	})
})

var _ = Describe("UnwrapSource", func() {
	It("returns empty for unrelated JSON", func() {
		Expect(wda.UnwrapSource([]byte(`{"value": 3}`))).To(BeEmpty())
		Expect(wda.UnwrapSource(nil)).To(BeEmpty())
	})
})
