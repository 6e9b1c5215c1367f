// Command voxstream runs the real-time speech-to-text service: WebSocket
// streaming with tiered transcript delivery plus HTTP batch transcription.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voxstream/voxstream/pkg/asr"
	"github.com/voxstream/voxstream/pkg/config"
	"github.com/voxstream/voxstream/pkg/server"
	"github.com/voxstream/voxstream/pkg/trace"
	"github.com/voxstream/voxstream/pkg/vad"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	log.Printf("[Main] starting voxstream (engine=%s, debug_audio=%v)", cfg.ASREngine, cfg.DebugAudioEnabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("[Main] tracing not initialized: %v", err)
	}
	defer trace.Shutdown(context.Background())

	// A missing engine or detector is not fatal: the HTTP surface stays up
	// and reports the outage, streaming clients get a 503 error message.
	engine, err := asr.NewEngine(ctx, cfg)
	if err != nil {
		log.Printf("[Main] failed to load ASR engine: %v", err)
	} else {
		defer engine.Close()
		log.Printf("[Main] ASR engine ready: %s", engine.Name())
	}

	detector, cleanupDetector := loadDetector(cfg)
	defer cleanupDetector()

	segmenter := loadSegmenter(cfg)
	defer segmenter.Close()

	srv, err := server.NewServer(cfg, engine, detector, segmenter)
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("[Main] server start failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Main] shutting down...")
	if err := srv.Stop(); err != nil {
		log.Printf("[Main] shutdown error: %v", err)
	}
}

// loadDetector prefers the silero streaming detector and falls back to the
// energy detector when silero support is not built in or the model fails to
// load.
func loadDetector(cfg *config.Config) (vad.DetectorInterface, func()) {
	if err := vad.InitRuntime(""); err != nil {
		log.Printf("[Main] silero runtime unavailable (%v), using energy VAD", err)
		return vad.NewEnergyDetector(0), func() {}
	}

	det, err := vad.NewDetector(vad.DetectorConfig{
		ModelPath:  cfg.VADModelPath,
		SampleRate: config.SampleRate,
	})
	if err != nil {
		log.Printf("[Main] silero detector unavailable (%v), using energy VAD", err)
		return vad.NewEnergyDetector(0), func() {}
	}

	log.Printf("[Main] silero VAD loaded from %s", cfg.VADModelPath)
	return det, func() {
		det.Destroy()
		vad.DestroyRuntime()
	}
}

// loadSegmenter picks the batch segmenter the same way.
func loadSegmenter(cfg *config.Config) vad.Segmenter {
	seg, err := vad.NewSileroSegmenter(cfg.VADModelPath)
	if err != nil {
		log.Printf("[Main] silero segmenter unavailable (%v), using energy segmenter", err)
		return vad.NewEnergySegmenter()
	}
	return seg
}
