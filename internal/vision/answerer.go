package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"

	"github.com/askcam-lab/internal/logging"
	"github.com/askcam-lab/llm"
)

// Answerer answers a question about a frame.
type Answerer interface {
	Answer(ctx context.Context, frame Frame, question string) (string, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, frame Frame, question string) (string, error)

func (f AnswererFunc) Answer(ctx context.Context, frame Frame, question string) (string, error) {
	return f(ctx, frame, question)
}

const systemPrompt = "You are an AI visual assistant, and you are seeing a single image. " +
	"Answer the question about the image concisely, in one or two short sentences that can be read aloud."

// Chat is the part of llm.Client the answerer needs.
type Chat interface {
	CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// LLMAnswerer sends the frame, downscaled to MaxSide, with the question to
// a vision chat model.
type LLMAnswerer struct {
	Chat      Chat
	MaxSide   int
	MaxTokens int
}

func NewLLMAnswerer(chat Chat, maxSide, maxTokens int) *LLMAnswerer {
	return &LLMAnswerer{Chat: chat, MaxSide: maxSide, MaxTokens: maxTokens}
}

func (a *LLMAnswerer) Answer(ctx context.Context, frame Frame, question string) (string, error) {
	img, err := PrepareImage(frame, a.MaxSide)
	if err != nil {
		return "", err
	}
	resp, err := a.Chat.CreateChatCompletion(ctx, llm.ChatRequest{
		System:    systemPrompt,
		Prompt:    fmt.Sprintf("Question: %s, Answer:", question),
		ImageJPEG: img,
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("vision model: %w", err)
	}
	answer := CleanAnswer(resp.Content)
	logging.DebugwCtx(ctx, "vision answer", "model", resp.Model, "chars", len(answer))
	return answer, nil
}

// CleanAnswer keeps only the text after the last "Answer:" marker, which
// models echoing the prompt tend to emit.
func CleanAnswer(s string) string {
	if i := strings.LastIndex(s, "Answer:"); i >= 0 {
		s = s[i+len("Answer:"):]
	}
	return strings.TrimSpace(s)
}

// PrepareImage decodes frame and re-encodes it as JPEG. Frames with a side
// longer than maxSide are resized to maxSide x maxSide.
func PrepareImage(frame Frame, maxSide int) ([]byte, error) {
	if len(frame.Data) == 0 {
		return nil, ErrNoFrame
	}
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	b := src.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		dst := image.NewRGBA(image.Rect(0, 0, maxSide, maxSide))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		src = dst
	} else if frame.Format == "jpeg" {
		return frame.Data, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
