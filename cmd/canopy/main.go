package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"canopy/internal/metrics"
	"canopy/internal/peer"
	"canopy/internal/transport"
	"canopy/internal/ui"
	"canopy/internal/wire"
	"github.com/sirupsen/logrus"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "this peer's IP address")
	port := flag.Int("port", 7777, "this peer's TCP port")
	isRoot := flag.Bool("root", false, "run as the tree root")
	rootIP := flag.String("root-ip", "", "root's IP address (clients only)")
	rootPort := flag.Int("root-port", 0, "root's TCP port (clients only)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics and /healthz on (empty disables)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid log level:", err)
		os.Exit(1)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	self, err := wire.NewAddress(*ip, *port)
	if err != nil {
		log.WithError(err).Fatal("invalid self address")
	}

	var rootAddr wire.Address
	if !*isRoot {
		if *rootIP == "" || *rootPort == 0 {
			log.Fatal("--root-ip and --root-port are required for a client peer")
		}
		rootAddr, err = wire.NewAddress(*rootIP, *rootPort)
		if err != nil {
			log.WithError(err).Fatal("invalid root address")
		}
	}

	entry := log.WithField("self", self.Canonical())

	stream, err := transport.New(self, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to start transport")
	}

	u := ui.New(self.RealString(), *isRoot, os.Stdin, os.Stdout)
	go u.Run()

	var m *metrics.Collector
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *metricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, *metricsAddr); err != nil {
				entry.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	p := peer.New(self, *isRoot, rootAddr, stream, u, m, entry)

	if *isRoot {
		entry.Info("running as root")
	} else {
		entry.WithField("root", rootAddr.Canonical()).Info("running as client")
	}

	p.Run()
}
