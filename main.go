package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/node"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// Name used by build script for the binary. (Please keep on single line)
const progname = "cuprated"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func main() {
	cfg := settings.New(settings.EnvSource{})
	log := ulog.New(cfg.ServiceName(), cfg.LogLevel(), cfg.LogPretty())

	log.Infof("%s starting (%s, %s)", progname, version, commit)

	env, err := sqlitekv.Open(cfg.DataPath())
	if err != nil {
		log.Fatalf("opening database at %q: %v", cfg.DataPath(), err)
	}

	n, err := node.New(cfg, log, env)
	if err != nil {
		log.Fatalf("constructing node: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("node exited: %v", err)
	}

	fmt.Fprintf(os.Stdout, "%s stopped\n", progname)
}
