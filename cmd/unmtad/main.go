// Command unmtad is the UnMTA SMTP receiving daemon.
//
// It wires together the ambient stack (internal/unfig for configuration,
// internal/unlog for logging, internal/tlscert for TLS material) and the
// protocol core (internal/smtp/...) the way chasquid.go wires chasquid's
// own packages together, down to the SIGHUP-reopens-the-log-file and
// SIGTERM-drains-gracefully signal handling (chasquid.go's signalHandler).
//
// Argument parsing uses github.com/docopt/docopt-go (a dependency chasquid
// itself carries in go.mod) instead of chasquid's own flag-based cmd/*
// utilities, since a single positional-free flag set is exactly docopt's
// sweet spot.
package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unmta/unmta/internal/metrics"
	"github.com/unmta/unmta/internal/smtp/plugin"
	"github.com/unmta/unmta/internal/smtp/protocol"
	"github.com/unmta/unmta/internal/smtp/server"
	"github.com/unmta/unmta/internal/smtp/smtpctx"
	"github.com/unmta/unmta/internal/tlscert"
	"github.com/unmta/unmta/internal/unfig"
	"github.com/unmta/unmta/internal/unlog"
	"github.com/unmta/unmta/plugins/denylist"
	"github.com/unmta/unmta/plugins/greeter"
)

const usage = `UnMTA - an extensible SMTP receiving server.

Usage:
  unmtad [--config=<path>] [--log=<path>]
  unmtad -h | --help
  unmtad --version

Options:
  --config=<path>  Path to the TOML configuration file. [default: /etc/unmta/unmta.toml]
  --log=<path>     Path to the log file. Logs to stderr if omitted.
  -h --help        Show this help.
  --version        Show version and exit.
`

const version = "unmtad 0.1.0"

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	configPath, _ := opts.String("--config")
	logPath, logErr := opts.String("--log")

	var logger *unlog.Logger
	if logErr == nil && logPath != "" {
		logger, err = unlog.NewFile(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unmtad: opening log file: %v\n", err)
			os.Exit(1)
		}
	} else {
		logger = unlog.New(os.Stderr)
	}
	unlog.Default = logger

	tree, err := unfig.Load(configPath)
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	logger.Infof("Unfig (config) loaded")

	level, err := unlog.ParseLevel(tree.Log.Level)
	if err != nil {
		logger.Fatalf("parsing [log].level: %v", err)
	}
	logger.Level = level
	logger.Infof("Logger initialized. Level: '%s'", level)

	mgr := plugin.NewManager()
	if err := loadPlugins(mgr, tree); err != nil {
		logger.Fatalf("loading plugins: %v", err)
	}

	srvTLS, err := loadTLS(tree)
	if err != nil {
		logger.Fatalf("loading TLS material: %v", err)
	}

	srv := server.New(&server.Server{
		Hostname:   tree.SMTP.Hostname,
		ListenAddr: fmt.Sprintf("%s:%d", tree.SMTP.Listen, tree.SMTP.Port),
		ProtocolConfig: protocol.Config{
			Hostname:             tree.SMTP.Hostname,
			MaxMessageSizeBytes:  tree.SMTP.MaxMessageSizeBytes,
			AuthEnable:           tree.Auth.Enable,
			AuthRequireTLS:       tree.Auth.RequireTLS,
			StartTLSEnable:       tree.TLS.EnableStartTLS,
			MaxConsecutiveErrors: tree.SMTP.MaxConsecutiveErrors,
			InactivityTimeout:    secondsOrDefault(tree.SMTP.InactivityTimeoutSec, 300),
		},
		TLSConfig:                   srvTLS,
		Plugins:                     mgr,
		Context:                     smtpctx.New(),
		Log:                         logger,
		GracefulStopTimeout:         secondsOrDefault(tree.SMTP.GracefulStopTimeoutSec, 300),
		PerIPConnectionsPerInterval: tree.SMTP.PerIPConnectionsInterval,
	})

	if tree.Log.MetricsAddress != "" {
		go serveMetrics(tree.Log.MetricsAddress, logger)
	}

	ln, err := srv.Listen()
	if err != nil {
		logger.Fatalf("starting server: %v", err)
	}
	logger.Infof("UnMTA SMTP server is running on %s:%d", tree.SMTP.Listen, tree.SMTP.Port)

	go handleSignals(srv, logger)

	if err := srv.Serve(ln); err != nil {
		logger.Errorf("accept loop: %v", err)
	}
}

func loadPlugins(mgr *plugin.Manager, tree *unfig.Tree) error {
	g, err := greeter.New(tree)
	if err != nil {
		return fmt.Errorf("greeter: %w", err)
	}
	return mgr.Load(g, denylist.New())
}

func loadTLS(tree *unfig.Tree) (*tls.Config, error) {
	if tree.TLS.Cert == "" || tree.TLS.Key == "" {
		return nil, nil
	}
	return tlscert.Load(tree.TLS.Cert, tree.TLS.Key)
}

func serveMetrics(addr string, log *unlog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	log.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server: %v", err)
	}
}

func handleSignals(srv *server.Server, log *unlog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	for sig := range ch {
		switch sig {
		case syscall.SIGHUP:
			if err := log.Reopen(); err != nil {
				log.Errorf("reopening log: %v", err)
			}
		case syscall.SIGTERM, syscall.SIGINT:
			log.Infof("shutting down")
			srv.Stop()
			os.Exit(0)
		}
	}
}

func secondsOrDefault(v int, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
