// Command server runs the UDP file-transfer and directory-sync service:
// a fixed control endpoint plus one ephemeral data endpoint per active
// download.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/config"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/logging"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/server"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/transport"
)

func main() {
	var (
		configFile = flag.String("config", "", "configuration file path")
		root       = flag.String("root", "", "confinement root directory (overrides config)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
		logFormat  = flag.String("log-format", "", "log format: text, json (overrides config)")
		logFile    = flag.String("log-file", "", "also write logs to this file")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [port] [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Server.Root = *root
	}
	if args := flag.Args(); len(args) > 0 {
		port, err := parsePort(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], err)
			os.Exit(1)
		}
		cfg.Server.Port = port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}

	if err := logging.InitFromConfig(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.Global().WithComponent("main")

	dispatcher, err := server.New(cfg)
	if err != nil {
		log.Errorf("create dispatcher: %v", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		log.Errorf("listen on %s: %v", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	log.Infof("serving %s on %s", cfg.Server.Root, addr)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		close(stop)
	}()

	if err := transport.Serve(conn, stop, dispatcher.Dispatch); err != nil {
		log.Errorf("control loop exited: %v", err)
		os.Exit(1)
	}
}

func parsePort(arg string) (int, error) {
	var port int
	_, err := fmt.Sscanf(arg, "%d", &port)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}
