package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// cliConfig holds the flag values the launcher exposes: listen addresses
// for RTMP and RTSP, a default chunk size, the RTP/RTCP port range, the log
// level and a version switch; everything else is compiled-in.
type cliConfig struct {
	rtmpListen  string
	rtspListen  string
	chunkSize   uint
	rtpPortLow  uint
	rtpPortHigh uint
	logLevel    string
	showVersion bool
}

var version = "dev"

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("streamcenterd", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.rtmpListen, "rtmp-listen", ":1935", "RTMP TCP listen address")
	fs.StringVar(&cfg.rtspListen, "rtsp-listen", ":554", "RTSP TCP listen address")
	fs.UintVar(&cfg.chunkSize, "chunk-size", 4096, "Default outbound RTMP chunk size")
	fs.UintVar(&cfg.rtpPortLow, "rtp-port-low", 20000, "Low end of the RTSP RTP/RTCP ephemeral port range")
	fs.UintVar(&cfg.rtpPortHigh, "rtp-port-high", 20999, "High end of the RTSP RTP/RTCP ephemeral port range")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.chunkSize == 0 || cfg.chunkSize > 16777215 {
		return nil, errors.New("chunk-size must be between 1 and 16777215")
	}
	if cfg.rtpPortLow == 0 || cfg.rtpPortHigh <= cfg.rtpPortLow {
		return nil, fmt.Errorf("invalid rtp port range [%d, %d]", cfg.rtpPortLow, cfg.rtpPortHigh)
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	return cfg, nil
}
