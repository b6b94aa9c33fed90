// Command streamcenterd is the minimal launcher: it parses listen
// addresses and a default chunk size, wires the Stream Center broker to
// RTMP and RTSP accept loops, and blocks until a signal asks for a clean
// shutdown. Everything else lives in internal/ and is exercised exactly
// the same way by this process's tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamcenter/streamcenter/internal/broker"
	"github.com/streamcenter/streamcenter/internal/clock"
	"github.com/streamcenter/streamcenter/internal/observer"
	rtmpsession "github.com/streamcenter/streamcenter/internal/rtmp/session"
	rtspsession "github.com/streamcenter/streamcenter/internal/rtsp/session"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if cfg.showVersion {
		fmt.Println(version)
		return 0
	}

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.logLevel); err == nil {
		log.SetLevel(lvl)
	}
	obs := observer.NewLogrus(log)
	clk := clock.System{}

	rtmpLn, err := net.Listen("tcp", cfg.rtmpListen)
	if err != nil {
		log.WithError(err).Error("rtmp: bind failed")
		return 1
	}
	defer rtmpLn.Close()

	rtspLn, err := net.Listen("tcp", cfg.rtspListen)
	if err != nil {
		log.WithError(err).Error("rtsp: bind failed")
		return 1
	}
	defer rtspLn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := broker.New(obs)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	ports := rtspsession.NewPortAllocator(int(cfg.rtpPortLow), int(cfg.rtpPortHigh))

	wg.Add(2)
	go func() {
		defer wg.Done()
		serveRTMP(ctx, rtmpLn, b, clk, obs, uint32(cfg.chunkSize), log)
	}()
	go func() {
		defer wg.Done()
		serveRTSP(ctx, rtspLn, b, clk, obs, ports, log)
	}()

	log.WithFields(logrus.Fields{"rtmp": cfg.rtmpListen, "rtsp": cfg.rtspListen}).Info("streamcenterd started")

	<-ctx.Done()
	log.Info("shutdown signal received")
	rtmpLn.Close()
	rtspLn.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("streamcenterd stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Error("forced exit after shutdown timeout")
	}
	return 0
}

func serveRTMP(ctx context.Context, ln net.Listener, b *broker.Broker, clk clock.Clock, obs observer.Observer, chunkSize uint32, log *logrus.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("rtmp: accept failed")
			continue
		}
		obs.ConnOpen("rtmp", conn.RemoteAddr().String())
		go func() {
			s := rtmpsession.New(conn, b, clk, obs, chunkSize)
			err := s.Run()
			obs.ConnClose("rtmp", conn.RemoteAddr().String(), err)
			conn.Close()
		}()
	}
}

func serveRTSP(ctx context.Context, ln net.Listener, b *broker.Broker, clk clock.Clock, obs observer.Observer, ports *rtspsession.PortAllocator, log *logrus.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("rtsp: accept failed")
			continue
		}
		obs.ConnOpen("rtsp", conn.RemoteAddr().String())
		go func() {
			s := rtspsession.New(conn, b, clk, obs, ports)
			err := s.Run()
			obs.ConnClose("rtsp", conn.RemoteAddr().String(), err)
			conn.Close()
		}()
	}
}
