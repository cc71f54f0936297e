package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/daemon"
	"github.com/matheus3301/wpplus/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath(), ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.Listen = *listenFlag
	}

	sessionName, err := session.ResolveName(*sessionFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, Config: cfg}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
