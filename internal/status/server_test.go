package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askcam-lab/internal/assistant"
)

type fakeState struct{ n atomic.Int64 }

func (f *fakeState) Snapshot() assistant.Snapshot {
	n := f.n.Add(1)
	return assistant.Snapshot{
		Phase:        assistant.PhaseSpeaking,
		InfoText:     "Speaking the answer...",
		QuestionText: "what is this",
		AnswerText:   "a red mug",
		Turns:        uint64(n),
	}
}

func TestStatusAndHealth(t *testing.T) {
	s := New(":0", &fakeState{}, time.Second)
	s.Handle("GET /extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["phase"] != "speaking" || got["answer_text"] != "a red mug" || got["question_text"] != "what is this" {
		t.Fatalf("status = %v", got)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("health = %q", body)
	}

	resp, err = http.Get(srv.URL + "/extra")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("mounted handler status = %d", resp.StatusCode)
	}
}

func TestWatchPushesSnapshots(t *testing.T) {
	s := New(":0", &fakeState{}, 10*time.Millisecond)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last uint64
	for i := 0; i < 3; i++ {
		var snap struct {
			Phase string `json:"phase"`
			Turns uint64 `json:"turns"`
		}
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatal(err)
		}
		if snap.Phase != "speaking" || snap.Turns <= last {
			t.Fatalf("push %d = %+v", i, snap)
		}
		last = snap.Turns
	}
	if s.Watchers() != 1 {
		t.Fatalf("watchers = %d", s.Watchers())
	}
}
