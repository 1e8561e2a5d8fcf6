package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/askcam-lab/llm"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFrameSourceCopiesOnSet(t *testing.T) {
	fs := NewFrameSource()
	if _, ok := fs.Get(); ok {
		t.Fatal("empty source returned a frame")
	}
	data := []byte{1, 2, 3}
	fs.Set(Frame{Data: data, Format: "jpeg"})
	data[0] = 9
	got, ok := fs.Get()
	if !ok || got.Data[0] != 1 || got.CapturedAt.IsZero() {
		t.Fatalf("got %+v", got)
	}
	fs.Set(Frame{Data: []byte{4}})
	if got, _ := fs.Get(); got.Data[0] != 4 || fs.Count() != 2 {
		t.Fatalf("latest not returned: %+v", got)
	}
}

func TestFrameSourceConcurrentSetGet(t *testing.T) {
	fs := NewFrameSource()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			fs.Set(Frame{Data: []byte{byte(i), byte(i)}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if f, ok := fs.Get(); ok && f.Data[0] != f.Data[1] {
				t.Error("torn frame")
				return
			}
		}
	}()
	wg.Wait()
}

func TestPrepareImageResizesLargeFrames(t *testing.T) {
	out, err := PrepareImage(Frame{Data: encodePNG(t, 1280, 720), Format: "png"}, 500)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 500 {
		t.Fatalf("size = %v", b)
	}

	small, err := PrepareImage(Frame{Data: encodePNG(t, 320, 240), Format: "png"}, 500)
	if err != nil {
		t.Fatal(err)
	}
	img, _ = jpeg.Decode(bytes.NewReader(small))
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("small frame resized: %v", b)
	}

	if _, err := PrepareImage(Frame{}, 500); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("err = %v", err)
	}
}

type stubChat struct {
	req  llm.ChatRequest
	resp string
	err  error
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.req = req
	return llm.ChatResponse{Content: s.resp, Model: "stub"}, s.err
}

func TestLLMAnswererPromptAndCleanup(t *testing.T) {
	chat := &stubChat{resp: "USER: ... Question: what is this, Answer: a red mug "}
	a := NewLLMAnswerer(chat, 500, 200)
	got, err := a.Answer(context.Background(), Frame{Data: encodePNG(t, 64, 64), Format: "png"}, "what is this")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a red mug" {
		t.Fatalf("answer = %q", got)
	}
	if chat.req.Prompt != "Question: what is this, Answer:" || chat.req.MaxTokens != 200 || len(chat.req.ImageJPEG) == 0 {
		t.Fatalf("request = %+v", chat.req)
	}

	chat.err = llm.ErrTransient
	if _, err := a.Answer(context.Background(), Frame{Data: encodePNG(t, 8, 8), Format: "png"}, "q"); !errors.Is(err, llm.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
}

func TestCleanAnswer(t *testing.T) {
	for in, want := range map[string]string{
		"  plain ":                 "plain",
		"Answer: yes":              "yes",
		"x Answer: a Answer: b\n": "b",
	} {
		if got := CleanAnswer(in); got != want {
			t.Errorf("CleanAnswer(%q) = %q, want %q", in, got, want)
		}
	}
}
