// Command indexer builds a complete playlist over an existing, sequentially
// numbered set of segment files, probing each file for its duration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/platform/config"
	"hls-segmenter/internal/platform/logger"
	"hls-segmenter/internal/playlist"
	"hls-segmenter/internal/probe"
)

const usage = "Usage: indexer [flags] <media dir> <media file pattern> <start index> <output m3u8 index file> <target duration> <http prefix>"

type options struct {
	Build        playlist.BuildOptions
	ManifestPath string
	LogLevel     string
	LogFormat    string
}

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
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := logger.New(os.Stderr, opts.LogLevel, opts.LogFormat)
	log.Info("indexing segments",
		"dir", opts.Build.Dir,
		"pattern", opts.Build.Pattern,
		"start_index", opts.Build.StartIndex,
		"index_file", opts.ManifestPath,
		"target_duration", opts.Build.TargetDuration,
		"http_prefix", opts.Build.URLPrefix,
	)

	pl, err := playlist.Build(context.Background(), opts.Build, probe.New(), log)
	if err != nil {
		log.Error("index build failed", "error", err)
		if media.IsKind(err, media.KindConfig) {
			return 2
		}
		return 1
	}

	if err := playlist.WriteFile(opts.ManifestPath, pl); err != nil {
		log.Error("could not write index file", "error", err)
		return 1
	}

	log.Info("index written", "index_file", opts.ManifestPath, "segments", pl.Len())
	return 0
}

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	o := &options{}

	fs := pflag.NewFlagSet("indexer", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&o.LogLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.StringVar(&o.LogFormat, "log-format", config.GetEnv("LOG_FORMAT", "json"), "log format (json, text)")

	if err := fs.Parse(args); err != nil {
		return nil, media.Errorf(media.KindConfig, "parse flags", "", err)
	}

	pos := fs.Args()
	if len(pos) != 6 {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", errors.New(usage))
	}

	start, err := strconv.ParseUint(pos[2], 10, 64)
	if err != nil {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", fmt.Errorf("start index %q must be a non-negative integer", pos[2]))
	}
	target, err := strconv.ParseUint(pos[4], 10, 32)
	if err != nil || target == 0 {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", fmt.Errorf("target duration %q must be a positive integer", pos[4]))
	}
	if err := playlist.ValidatePattern(pos[1]); err != nil {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", err)
	}
	if !logger.ValidLevel(o.LogLevel) {
		return nil, media.Errorf(media.KindConfig, "parse flags", "", fmt.Errorf("invalid log level %q", o.LogLevel))
	}
	if o.LogFormat != "json" && o.LogFormat != "text" {
		return nil, media.Errorf(media.KindConfig, "parse flags", "", fmt.Errorf("invalid log format %q", o.LogFormat))
	}

	o.Build = playlist.BuildOptions{
		Dir:            pos[0],
		Pattern:        pos[1],
		StartIndex:     start,
		TargetDuration: uint(target),
		URLPrefix:      pos[5],
	}
	o.ManifestPath = pos[3]
	return o, nil
}
