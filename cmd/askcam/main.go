// Command askcam is a voice-activated camera assistant: say the wake
// phrase, ask a question about what the camera sees and hear the answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/askcam-lab/internal/archive"
	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/camera"
	"github.com/askcam-lab/internal/config"
	"github.com/askcam-lab/internal/logging"
	"github.com/askcam-lab/internal/mcp"
	"github.com/askcam-lab/internal/notify"
	"github.com/askcam-lab/internal/observe"
	"github.com/askcam-lab/internal/status"
	"github.com/askcam-lab/internal/vision"
	"github.com/askcam-lab/internal/voice"
	"github.com/askcam-lab/llm"
)

var version = "dev"

func main() {
	sugar := logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logging.FatalExitf("invalid configuration", "err", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		sugar.Errorw("askcam exited with error", "err", err)
		_ = logging.Sync()
		os.Exit(1)
	}
	sugar.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownMetrics, err := observe.InitProvider("askcam", version)
	if err != nil {
		return fmt.Errorf("metrics provider: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(sctx)
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ring := audio.NewRing(cfg.Audio.RingCapacity)
	capture := audio.NewCapture(ring, cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ChunkQueue)
	if err := metrics.ObserveCounter("askcam.capture.dropped_chunks", "Recording chunks dropped by the capture callback.", capture.Dropped); err != nil {
		return err
	}
	if err := metrics.ObserveCounter("askcam.capture.chunks", "Audio periods delivered by the input device.", capture.Chunks); err != nil {
		return err
	}

	recognizer, closeRecognizer, err := newRecognizer(cfg.Recognizer)
	if err != nil {
		return err
	}
	defer closeRecognizer()

	player, err := newPlayer(cfg.Audio)
	if err != nil {
		return err
	}
	tts := voice.NewTTSClient(cfg.TTS.URL, cfg.TTS.AuthToken, cfg.TTS.Timeout, player)

	observers := []assistant.Observer{observe.Observer{M: metrics}}
	var arch *archive.Archive
	if cfg.Archive.Enabled {
		if arch, err = archive.New(cfg.Archive.Dir, cfg.Archive.Locking); err != nil {
			return err
		}
		tts.Saver = arch
		observers = append(observers, arch)
	}
	var discord *notify.Discord
	if cfg.Discord.Token != "" {
		if discord, err = notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID); err != nil {
			return err
		}
		observers = append(observers, discord)
		if err := metrics.ObserveCounter("askcam.discord.dropped", "Turn notifications dropped on a full queue.", func() int64 {
			_, dropped := discord.Stats()
			return dropped
		}); err != nil {
			return err
		}
	}

	frames := vision.NewFrameSource()
	if err := metrics.ObserveCounter("askcam.camera.frames", "Camera frames stored.", func() int64 { return int64(frames.Count()) }); err != nil {
		return err
	}
	chat := llm.NewClient(llm.Options{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout,
	})

	coord, err := assistant.New(assistant.Options{
		PollInterval: cfg.Hotword.PollInterval,
		Detector:     voice.NewHotwordDetector(capture, recognizer, voice.NewTriggerSet(cfg.Hotword.Phrases), cfg.Hotword.Window),
		Recorder: voice.NewQuestionRecorder(capture, recognizer, voice.RecorderConfig{
			SilenceThreshold: cfg.Question.SilenceThreshold,
			SilenceDuration:  cfg.Question.SilenceDuration,
			MaxDuration:      cfg.Question.MaxDuration,
		}),
		Frames:    frames,
		Answerer:  vision.NewLLMAnswerer(chat, cfg.LLM.MaxImageSide, cfg.LLM.MaxTokens),
		Synth:     tts,
		History:   capture,
		Observers: observers,
	})
	if err != nil {
		return err
	}

	srv := status.New(cfg.Status.Addr, coord, cfg.Status.PushInterval)
	srv.Handle("GET /metrics", observe.Handler())
	ingest := camera.NewIngest(frames, cfg.Camera.MaxFrameBytes)
	if err := metrics.ObserveCounter("askcam.camera.rejected_frames", "Pushed camera frames that failed to decode.", func() int64 {
		_, rejected := ingest.Stats()
		return rejected
	}); err != nil {
		return err
	}
	srv.Handle("GET /camera/ws", ingest)
	if cfg.Status.MCPEnabled {
		srv.Handle("GET /mcp/ws", mcp.Handler(mcp.NewServer(coord, version)))
	}

	device, err := newDevice(cfg.Audio)
	if err != nil {
		return err
	}
	if src, ok := device.(*audio.OpusSource); ok {
		if err := metrics.ObserveCounter("askcam.mic.dropped_packets", "Remote microphone packets dropped on a full queue.", func() int64 {
			dropped, _ := src.Stats()
			return dropped
		}); err != nil {
			return err
		}
		if err := metrics.ObserveCounter("askcam.mic.decode_errors", "Remote microphone packets that failed to decode.", func() int64 {
			_, decodeErrs := src.Stats()
			return decodeErrs
		}); err != nil {
			return err
		}
		srv.Handle("GET /mic/ws", src)
	}

	logging.Infow("askcam starting",
		"version", version,
		"audio_source", cfg.Audio.Source,
		"recognizer", cfg.Recognizer.Backend,
		"model", cfg.LLM.Model,
		"wake_phrases", cfg.Hotword.Phrases,
		"status_addr", cfg.Status.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	if device != nil {
		g.Go(func() error {
			err := audio.RunDevice(gctx, device, capture, audio.DefaultBackoff)
			if errors.Is(err, audio.ErrUnsupported) {
				return fmt.Errorf("audio source %q: %w (rebuild with the matching build tag)", cfg.Audio.Source, err)
			}
			return err
		})
	}
	if cfg.Camera.SnapshotURL != "" {
		poller := camera.NewSnapshotPoller(cfg.Camera.SnapshotURL, cfg.Camera.SnapshotInterval, cfg.Camera.MaxFrameBytes, frames)
		g.Go(func() error { return poller.Run(gctx) })
	}
	if arch != nil {
		cleaner := &archive.Cleaner{
			Dir:       cfg.Archive.Dir,
			Retention: cfg.Archive.Retention,
			Interval:  cfg.Archive.CleanInterval,
			MaxFiles:  cfg.Archive.MaxFiles,
		}
		g.Go(func() error { return cleaner.Run(gctx) })
	}
	if discord != nil {
		g.Go(func() error { return discord.Run(gctx) })
	}

	err = g.Wait()
	audio.Terminate()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
