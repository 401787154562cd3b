package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"hls-segmenter/internal/media"
	"hls-segmenter/internal/platform/config"
	"hls-segmenter/internal/platform/logger"
)

const usage = "Usage: segmenter [flags] <input MPEG-TS file|-> <segment duration in seconds> <output MPEG-TS file prefix> <output m3u8 index file> <http prefix> [<segment window size>]"

type options struct {
	Input          string
	TargetDuration uint
	Prefix         string
	OutputDir      string
	ManifestPath   string
	URLPrefix      string
	WindowSize     int
	StartIndex     uint64
	DeleteEvicted  bool
	Listen         string
	LogLevel       string
	LogFormat      string
}

// parseOptions reads flags and positional arguments. Flag defaults come
// from the environment. Every failure is a config error.
func parseOptions(args []string, stderr io.Writer) (*options, error) {
	o := &options{}

	startEnv := config.GetEnvInt("SEGMENT_START_INDEX", 0)
	if startEnv < 0 {
		return nil, media.Errorf(media.KindConfig, "parse environment", "", fmt.Errorf("SEGMENT_START_INDEX %d must not be negative", startEnv))
	}

	fs := pflag.NewFlagSet("segmenter", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&o.OutputDir, "output-dir", config.GetEnv("SEGMENT_OUTPUT_DIR", ""), "directory for segment files (default: directory of the output prefix)")
	fs.Uint64Var(&o.StartIndex, "start-index", uint64(startEnv), "index of the first segment")
	fs.BoolVar(&o.DeleteEvicted, "delete-evicted", config.GetEnvBool("SEGMENT_DELETE_EVICTED", false), "delete segment files that leave the playlist window")
	fs.StringVar(&o.Listen, "listen", config.GetEnv("LISTEN_ADDR", ""), "serve the playlist, segments and metrics on this address (e.g. :8080)")
	fs.StringVar(&o.LogLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.StringVar(&o.LogFormat, "log-format", config.GetEnv("LOG_FORMAT", "json"), "log format (json, text)")

	if err := fs.Parse(args); err != nil {
		return nil, media.Errorf(media.KindConfig, "parse flags", "", err)
	}

	pos := fs.Args()
	if len(pos) < 5 || len(pos) > 6 {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", errors.New(usage))
	}

	o.Input = pos[0]
	d, err := strconv.ParseUint(pos[1], 10, 32)
	if err != nil || d == 0 {
		return nil, media.Errorf(media.KindConfig, "parse arguments", "", fmt.Errorf("segment duration %q must be a positive integer", pos[1]))
	}
	o.TargetDuration = uint(d)

	o.Prefix = filepath.Base(pos[2])
	if o.OutputDir == "" {
		o.OutputDir = filepath.Dir(pos[2])
	}
	o.ManifestPath = pos[3]
	o.URLPrefix = pos[4]

	if len(pos) == 6 {
		w, err := strconv.Atoi(pos[5])
		if err != nil || w < 0 {
			return nil, media.Errorf(media.KindConfig, "parse arguments", "", fmt.Errorf("maximum number of ts files (%s) invalid", pos[5]))
		}
		o.WindowSize = w
	} else {
		o.WindowSize = config.GetEnvInt("SEGMENT_WINDOW_SIZE", 0)
	}

	if err := o.validate(); err != nil {
		return nil, media.Errorf(media.KindConfig, "validate", "", err)
	}
	return o, nil
}

func (o *options) validate() error {
	switch {
	case o.Input == "":
		return errors.New("input is required")
	case o.Prefix == "" || o.Prefix == "." || o.Prefix == string(filepath.Separator):
		return errors.New("output prefix must name a file")
	case o.ManifestPath == "":
		return errors.New("index file is required")
	case o.WindowSize < 0:
		return errors.New("segment window size must not be negative")
	case !logger.ValidLevel(o.LogLevel):
		return fmt.Errorf("invalid log level %q", o.LogLevel)
	case o.LogFormat != "json" && o.LogFormat != "text":
		return fmt.Errorf("invalid log format %q", o.LogFormat)
	}
	return nil
}
