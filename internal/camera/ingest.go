package camera

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/askcam-lab/internal/logging"
)

// Ingest accepts frames over websocket, one binary message per encoded
// image. Several clients may push at once; the latest frame wins.
type Ingest struct {
	sink     Sink
	maxBytes int
	upgrader websocket.Upgrader

	frames   atomic.Int64
	rejected atomic.Int64
}

func NewIngest(sink Sink, maxBytes int) *Ingest {
	return &Ingest{
		sink:     sink,
		maxBytes: maxBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize: 64 << 10,
			CheckOrigin:    func(r *http.Request) bool { return true },
		},
	}
}

func (in *Ingest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := in.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("camera websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	if in.maxBytes > 0 {
		conn.SetReadLimit(int64(in.maxBytes))
	}
	logging.Infow("camera connected", "remote", r.RemoteAddr)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warnw("camera disconnected", "remote", r.RemoteAddr, "err", err)
			} else {
				logging.Infow("camera disconnected", "remote", r.RemoteAddr)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		frame, err := DecodeFrame(data, in.maxBytes)
		if err != nil {
			if in.rejected.Add(1)%100 == 1 {
				logging.Warnw("camera frame rejected", "err", err, "bytes", len(data))
			}
			continue
		}
		in.sink.Set(frame)
		in.frames.Add(1)
	}
}

// Stats reports accepted and rejected frames.
func (in *Ingest) Stats() (frames, rejected int64) {
	return in.frames.Load(), in.rejected.Load()
}
