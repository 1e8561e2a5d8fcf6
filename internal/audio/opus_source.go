package audio

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/askcam-lab/internal/logging"
)

type packetDecoder interface {
	DecodeFloat32(packet []byte, pcm []float32) (int, error)
}

// OpusSource is a remote microphone: clients stream binary websocket
// messages, one opus packet each, and Run decodes them into the sink.
// Only one client streams at a time; a second connection is refused.
type OpusSource struct {
	SampleRate int
	Channels   int

	packets   chan []byte
	connected atomic.Bool
	dropped   atomic.Int64
	decodeErr atomic.Int64
	upgrader  websocket.Upgrader

	// openDecoder is swapped in tests; it defaults to libopus.
	openDecoder func(sampleRate, channels int) (packetDecoder, error)
}

// NewOpusSource creates a remote mic source. queue bounds buffered packets.
func NewOpusSource(sampleRate, channels, queue int) *OpusSource {
	if queue <= 0 {
		queue = 64
	}
	return &OpusSource{
		SampleRate:  sampleRate,
		Channels:    channels,
		packets:     make(chan []byte, queue),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		openDecoder: openOpusDecoder,
	}
}

func (o *OpusSource) Name() string { return "opus-websocket" }

// ServeHTTP upgrades the request and enqueues every binary message. The
// read loop never blocks on decoding; a full queue drops the packet.
func (o *OpusSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !o.connected.CompareAndSwap(false, true) {
		http.Error(w, "microphone already connected", http.StatusConflict)
		return
	}
	defer o.connected.Store(false)
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("mic websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	logging.Infow("remote microphone connected", "remote", r.RemoteAddr)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			logging.Infow("remote microphone disconnected", "remote", r.RemoteAddr, "err", err)
			return
		}
		if mt != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		select {
		case o.packets <- data:
		default:
			o.dropped.Add(1)
			logging.Debugw("dropping opus packet; queue full")
		}
	}
}

// Run decodes queued packets until ctx ends.
func (o *OpusSource) Run(ctx context.Context, sink Sink) error {
	dec, err := o.openDecoder(o.SampleRate, o.Channels)
	if err != nil {
		return err
	}
	// 120 ms is the longest opus frame
	pcm := make([]float32, o.SampleRate*120/1000*o.Channels)
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-o.packets:
			n, err := dec.DecodeFloat32(pkt, pcm)
			if err != nil {
				if o.decodeErr.Add(1) == 1 {
					logging.Errorw("opus decode error", "err", err)
				}
				continue
			}
			if n > 0 {
				sink.OnSamples(pcm[:n*o.Channels])
			}
		}
	}
}

// Stats reports dropped and undecodable packets.
func (o *OpusSource) Stats() (dropped, decodeErrors int64) {
	return o.dropped.Load(), o.decodeErr.Load()
}

func (o *OpusSource) String() string {
	return fmt.Sprintf("opus(%d Hz, %d ch)", o.SampleRate, o.Channels)
}
