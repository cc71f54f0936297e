package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/session"
	"github.com/matheus3301/wpplus/internal/tui"
	"github.com/matheus3301/wpplus/internal/tui/client"
)

const daemonStartTimeout = 10 * time.Second

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon address (default: from the profile lock or config)")
	noStart := flag.Bool("no-start", false, "do not start wppd when it is not running")
	flag.Parse()

	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	sessionName, err := session.ResolveName(*sessionFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		addr = client.ResolveAddr(sessionName, cfg)
	}
	c := client.New(addr)

	if err := ensureDaemon(c, sessionName, !*noStart && *addrFlag == ""); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := tui.NewApp(c, sessionName)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ensureDaemon returns once the daemon answers health checks, spawning
// wppd for the profile first when allowed.
func ensureDaemon(c *client.Client, sessionName string, spawn bool) error {
	if healthy(c) {
		return nil
	}
	if !spawn {
		return fmt.Errorf("daemon not reachable at %s", c.Base())
	}

	fmt.Fprintf(os.Stderr, "daemon not running for session %q, starting...\n", sessionName)
	wppd := "wppd"
	if exe, err := os.Executable(); err == nil {
		if sibling := filepath.Join(filepath.Dir(exe), "wppd"); fileExists(sibling) {
			wppd = sibling
		}
	}
	cmd := exec.Command(wppd, "--session", sessionName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", wppd, err)
	}
	go func() { _ = cmd.Wait() }()

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if healthy(c) {
			return nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become ready within %s", daemonStartTimeout)
}

func healthy(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Health(ctx) == nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
