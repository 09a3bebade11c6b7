package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvitals/vitalscribe/internal/audio"
	"github.com/openvitals/vitalscribe/internal/config"
	"github.com/openvitals/vitalscribe/internal/ctc"
	"github.com/openvitals/vitalscribe/internal/engine"
	"github.com/openvitals/vitalscribe/internal/mel"
	"github.com/openvitals/vitalscribe/internal/models"
	"github.com/openvitals/vitalscribe/internal/relay"
	"github.com/openvitals/vitalscribe/internal/transcribe"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/vitalscribe/config.yaml)")
	download := flag.Bool("download-models", false, "download model artifacts and exit")
	mode := flag.String("mode", "continuous", "transcription mode: continuous or ptt")
	listen := flag.String("listen", "", "transcript relay address (overrides config)")
	flag.Parse()

	if *download {
		if err := models.Download(config.DefaultModelsDir()); err != nil {
			log.Fatalf("download: %v", err)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *listen != "" {
		cfg.Relay.Enabled = true
		cfg.Relay.Address = *listen
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if *mode != "continuous" && *mode != "ptt" {
		log.Fatalf("invalid -mode %q (expected continuous or ptt)", *mode)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg, *mode)

	// Sinks: stdout always; websocket relay when enabled.
	sinks := []transcribe.Sink{transcribe.SinkFunc(func(text string, _ []byte) {
		fmt.Printf("> %s\n", text)
	})}

	var rly *relay.Relay
	if cfg.Relay.Enabled {
		rly = relay.New(cfg.Relay.Address)
		sinks = append(sinks, rly)
		go func() {
			if err := rly.ListenAndServe(); err != nil {
				log.Printf("ERROR: relay server: %v", err)
			}
		}()
	}

	acc := audio.NewAccumulator(cfg.MaxBufferSamples())

	sched := transcribe.NewScheduler(transcribe.Options{
		Accumulator:  acc,
		Extractor:    mel.NewExtractor(),
		Sink:         transcribe.MultiSink(sinks...),
		SampleRate:   cfg.Audio.SampleRate,
		Interval:     time.Duration(cfg.Scheduler.IntervalSeconds * float64(time.Second)),
		MinAudio:     time.Duration(cfg.Scheduler.MinAudioSeconds * float64(time.Second)),
		RMSGate:      cfg.Scheduler.RMSGate,
		IncludeAudio: cfg.Scheduler.IncludeAudio,
		PushToTalk:   *mode == "ptt",
	})

	log.Println("Loading model...")
	modelStart := time.Now()
	err = sched.Load(context.Background(), func(context.Context) (engine.Engine, *ctc.Vocabulary, error) {
		vocab, err := ctc.LoadVocabulary(cfg.Model.VocabPath)
		if err != nil {
			return nil, nil, err
		}
		eng, err := engine.NewONNXEngine(cfg.Model.Path)
		if err != nil {
			return nil, nil, err
		}
		return eng, vocab, nil
	})
	if err != nil {
		log.Fatalf("Failed to load model: %v\n\nRun 'vitalscribe -download-models' to fetch the artifacts.", err)
	}
	log.Printf("Model loaded in %s", time.Since(modelStart).Round(time.Millisecond))

	capture, err := audio.NewCapture(cfg.Audio.DeviceSampleRate, cfg.Audio.SampleRate, cfg.Audio.Channels, acc)
	if err != nil {
		sched.Close()
		log.Fatalf("Failed to initialize audio capture: %v\n\nEnsure microphone access is granted.", err)
	}
	if err := capture.Start(); err != nil {
		capture.Close()
		sched.Close()
		log.Fatalf("Failed to start audio capture: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		capture.Close()
		sched.Close()
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *mode == "ptt" {
		log.Println("Ready! Press Enter to start/stop an utterance. Ctrl+C to quit.")
		go pttLoop(sched)
	} else {
		log.Printf("Ready! Transcribing every %.0fs. Ctrl+C to quit.", cfg.Scheduler.IntervalSeconds)
	}

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)

	capture.Stop()
	sched.Stop()
	if rly != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rly.Shutdown(ctx)
		cancel()
	}
	capture.Close()
	sched.Close()
	log.Println("Goodbye!")
}

// pttLoop toggles utterances on stdin newlines.
func pttLoop(sched *transcribe.Scheduler) {
	scanner := bufio.NewScanner(os.Stdin)
	recording := false
	for scanner.Scan() {
		if !recording {
			if err := sched.BeginUtterance(); err != nil {
				log.Printf("ERROR: begin utterance: %v", err)
				continue
			}
			recording = true
			log.Println("Recording... press Enter to finish.")
			continue
		}

		recording = false
		text, err := sched.EndUtteranceAndTranscribe(context.Background())
		switch {
		case errors.Is(err, transcribe.ErrBusy):
			log.Println("Still transcribing the previous utterance, try again.")
		case err != nil:
			log.Printf("ERROR: transcription failed: %v", err)
		case text == "":
			log.Println("No speech detected")
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, mode string) {
	fmt.Println("=== vitalscribe ===")
	fmt.Printf("  Model:   %s\n", cfg.Model.Path)
	fmt.Printf("  Vocab:   %s\n", cfg.Model.VocabPath)
	fmt.Printf("  Audio:   %dHz capture -> %dHz pipeline, %.0fs window\n",
		cfg.Audio.DeviceSampleRate, cfg.Audio.SampleRate, cfg.Audio.MaxBufferSeconds)
	fmt.Printf("  Mode:    %s (every %.0fs, min %.0fs)\n",
		mode, cfg.Scheduler.IntervalSeconds, cfg.Scheduler.MinAudioSeconds)
	if cfg.Relay.Enabled {
		fmt.Printf("  Relay:   ws://%s/ws\n", cfg.Relay.Address)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
