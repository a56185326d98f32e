package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/loom/certs"
	"github.com/zsiec/loom/ingest"
	srtingest "github.com/zsiec/loom/ingest/srt"
	"github.com/zsiec/loom/publish"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	quicAddr := envOr("QUIC_ADDR", ":4443")

	slog.Info("loom starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"cert_hash", cert.FingerprintBase64(),
	)

	pub, err := publish.NewServer(quicAddr, cert, nil)
	if err != nil {
		slog.Error("failed to create publish server", "error", err)
		os.Exit(1)
	}

	a := &app{pub: pub}

	g, ctx := errgroup.WithContext(ctx)

	// The registry callback captures the errgroup-derived context so stream
	// pipelines shut down when any component fails.
	a.registry = ingest.NewRegistry(func(stream *ingest.Stream) {
		a.handleStream(ctx, stream)
	})

	srtSrv := srtingest.NewServer(srtAddr, a.registry, nil)

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		return pub.Serve(ctx)
	})

	// Optional caller-mode pull from a remote SRT source.
	if pullAddr := os.Getenv("SRT_PULL"); pullAddr != "" {
		caller := srtingest.NewCaller(a.registry, nil)
		pullKey := envOr("SRT_PULL_KEY", "pull")
		g.Go(func() error {
			return caller.Pull(ctx, srtingest.PullRequest{
				Address:   pullAddr,
				StreamKey: pullKey,
			})
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	registry *ingest.Registry
	pub      *publish.Server
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
