package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Client talks to an OpenAI-compatible chat completions endpoint. When the
// primary model fails transiently the request is retried once on
// FallbackModel.
type Client struct {
	api           oai.Client
	Model         string
	FallbackModel string
	MaxTokens     int
	FallbackDelay time.Duration
}

// Options configures NewClient.
type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	Timeout       time.Duration
}

// ChatRequest is a single-turn request with an optional JPEG attachment.
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	ImageJPEG   []byte
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	ID      string
	Model   string
	Content string
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

func NewClient(o Options) *Client {
	base := o.BaseURL
	if base == "" {
		base = "http://127.0.0.1:8000/v1/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	key := o.APIKey
	if key == "" {
		// local servers ignore the key but the SDK always sends one
		key = "none"
	}
	model := o.Model
	if model == "" {
		model = "local"
	}
	return &Client{
		api: oai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(base),
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
			option.WithMaxRetries(0),
		),
		Model:         model,
		FallbackModel: o.FallbackModel,
		MaxTokens:     o.MaxTokens,
		FallbackDelay: 250 * time.Millisecond,
	}
}

func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	resp, err := c.complete(ctx, model, req)
	if err == nil || !errors.Is(err, ErrTransient) {
		return resp, err
	}
	if c.FallbackModel == "" || c.FallbackModel == model || ctx.Err() != nil {
		return resp, err
	}
	t := time.NewTimer(c.FallbackDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	case <-t.C:
	}
	resp, ferr := c.complete(ctx, c.FallbackModel, req)
	if ferr != nil {
		return ChatResponse{}, fmt.Errorf("fallback %s: %w", c.FallbackModel, ferr)
	}
	return resp, nil
}

func (c *Client) complete(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	if len(req.ImageJPEG) > 0 {
		dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.ImageJPEG)
		messages = append(messages, oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
			oai.TextContentPart(req.Prompt),
			oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		}))
	} else {
		messages = append(messages, oai.UserMessage(req.Prompt))
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if mt := c.maxTokens(req.MaxTokens); mt > 0 {
		params.MaxTokens = param.NewOpt(int64(mt))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	out, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatResponse{}, classify(err)
	}
	content := ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	return ChatResponse{ID: out.ID, Model: model, Content: content}, nil
}

// maxTokens clamps the request's budget to the client limit.
func (c *Client) maxTokens(requested int) int {
	limit := c.MaxTokens
	switch {
	case requested <= 0:
		return limit
	case limit > 0 && requested > limit:
		return limit
	default:
		return requested
	}
}

// classify maps SDK errors onto ErrTransient (network, 429, 5xx) and
// ErrPermanent (other 4xx).
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d", ErrTransient, apiErr.StatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrPermanent, apiErr.StatusCode)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
