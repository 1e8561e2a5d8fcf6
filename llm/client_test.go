package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type recordedRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens"`
	Messages  []json.RawMessage `json:"messages"`
}

func completion(w http.ResponseWriter, model, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
}

func apiError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
}

func TestModelSelectionAndFallback(t *testing.T) {
	var mu sync.Mutex
	var models []string
	// 500 for the primary model, 200 for anything else
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p recordedRequest
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		models = append(models, p.Model)
		mu.Unlock()
		if p.Model == "big-vision" {
			apiError(w, 500)
			return
		}
		completion(w, p.Model, "ok from "+p.Model)
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL + "/v1", Model: "big-vision", FallbackModel: "local"})
	client.FallbackDelay = 0
	resp, err := client.CreateChatCompletion(context.Background(), ChatRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("expected success via fallback, got err: %v", err)
	}
	if resp.Content != "ok from local" || resp.Model != "local" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(models, ",") != "big-vision,local" {
		t.Fatalf("models tried: %v", models)
	}
}

func TestPermanentError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		apiError(w, 401)
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL + "/v1/", Model: "big-vision", FallbackModel: "local"})
	_, err := client.CreateChatCompletion(context.Background(), ChatRequest{Prompt: "hi"})
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error, got: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent errors must not fall back, calls=%d", calls.Load())
	}
}

func TestImageAttachmentAndTokenClamp(t *testing.T) {
	bodies := make(chan []byte, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		completion(w, "llava", "Answer: a red mug")
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL + "/v1", Model: "llava", MaxTokens: 200})
	resp, err := client.CreateChatCompletion(context.Background(), ChatRequest{
		System:    "be brief",
		Prompt:    "Question: what is this, Answer:",
		ImageJPEG: []byte{0xff, 0xd8, 0xff},
		MaxTokens: 4000,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Content != "Answer: a red mug" {
		t.Fatalf("content = %q", resp.Content)
	}
	raw := <-bodies
	var got recordedRequest
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if got.MaxTokens != 200 || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if !strings.Contains(string(raw), "data:image/jpeg;base64,/9j/") || !strings.Contains(string(raw), "image_url") {
		t.Fatalf("image part missing: %s", raw)
	}
}

func TestTransientWithoutFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, 429)
	}))
	defer ts.Close()
	client := NewClient(Options{BaseURL: ts.URL + "/v1", Model: "m"})
	_, err := client.CreateChatCompletion(context.Background(), ChatRequest{Prompt: "x"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}
