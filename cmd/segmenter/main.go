package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/mpegts"
	"hls-segmenter/internal/platform/config"
	"hls-segmenter/internal/platform/logger"
	"hls-segmenter/internal/platform/metrics"
	"hls-segmenter/internal/playlist"
	"hls-segmenter/internal/segmenter"
	"hls-segmenter/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = config.Load()

	opts, err := parseOptions(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return 2
	}

	log := logger.New(os.Stderr, opts.LogLevel, opts.LogFormat)
	met := metrics.New()

	store, err := storage.NewDirStore(opts.OutputDir)
	if err != nil {
		log.Error("segment directory unavailable", "dir", opts.OutputDir, "error", err)
		return 1
	}

	in, closeIn, err := openInput(opts.Input)
	if err != nil {
		log.Error("could not open input file", "input", opts.Input, "error", media.Errorf(media.KindSource, "open input", opts.Input, err))
		return 1
	}
	defer closeIn()

	ctx := context.Background()
	pl := playlist.New(opts.TargetDuration, opts.URLPrefix, opts.WindowSize, opts.StartIndex)
	pub := playlist.NewPublisher()

	var srv *http.Server
	if opts.Listen != "" {
		srv = &http.Server{Addr: opts.Listen, Handler: newRouter(pub, store, filepath.Base(opts.ManifestPath), log, met)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("server error", "error", err)
				os.Exit(1)
			}
		}()
		log.Info("server starting", "addr", opts.Listen)
	}

	sess := segmenter.NewSession(segmenter.SessionConfig{
		Controller: segmenter.Options{
			TargetDuration: float64(opts.TargetDuration),
			Prefix:         opts.Prefix,
			Extension:      segmenter.DefaultExtension,
			StartIndex:     opts.StartIndex,
		},
		ManifestPath:  opts.ManifestPath,
		DeleteEvicted: opts.DeleteEvicted,
	}, pl, pub, store, log, met)

	if err := segment(ctx, sess, in, store); err != nil {
		log.Error("segmentation failed", "error", err)
		return 1
	}

	if srv == nil {
		return 0
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("server stopped")
	return 0
}

func segment(ctx context.Context, sess *segmenter.Session, in io.Reader, store *storage.DirStore) error {
	return sess.Open(func() (segmenter.Source, segmenter.Sink, error) {
		src, err := mpegts.NewSource(ctx, bufio.NewReaderSize(in, 1<<20))
		if err != nil {
			return nil, nil, err
		}
		return src, mpegts.NewSink(ctx, store, segmenter.ElectTracks(src.Tracks())), nil
	})
}

func openInput(input string) (io.Reader, func(), error) {
	if input == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func newRouter(pub *playlist.Publisher, store playlist.SegmentOpener, manifestName string, log *slog.Logger, met *metrics.Metrics) *chi.Mux {
	h := playlist.NewHandler(pub, store, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler())
	r.Get("/"+manifestName, h.GetPlaylist)
	r.Head("/"+manifestName, h.GetPlaylist)
	r.Get("/{segment}", h.GetSegment)
	return r
}
