package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/wpplus/internal/api"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/tui/client"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, st)
			}
			printStatus(out, st)
			return nil
		}),
	}
}

func printStatus(out io.Writer, st *api.StatusResponse) {
	_, _ = fmt.Fprintf(out, "Session: %s\n", st.Session)
	_, _ = fmt.Fprintf(out, "Status:  %s\n", st.Status)
	if st.Code != "" {
		_, _ = fmt.Fprintln(out, "QR:      waiting for scan (run `wppctl auth`)")
	}
	_, _ = fmt.Fprintf(out, "Uptime:  %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	if s := st.Stats; s != nil {
		_, _ = fmt.Fprintf(out, "Store:   %d contacts, %d chats, %d messages, %d scheduled\n",
			s.Contacts, s.Chats, s.Messages, s.Scheduled)
	}
}

func (a *app) authCmd() *cobra.Command {
	var wait, interval time.Duration
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Print the pairing QR code and wait until the session is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			return waitForAuth(ctx, c, cmd.OutOrStdout(), interval)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Minute, "how long to wait for the scan")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "status poll interval")
	return cmd
}

// waitForAuth polls the daemon, printing each new QR payload, until the
// session is ready or ctx ends.
func waitForAuth(ctx context.Context, c *client.Client, out io.Writer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastCode := ""
	for {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		switch {
		case st.Status == status.Ready:
			_, _ = fmt.Fprintln(out, "Session is ready.")
			return nil
		case st.Code != "" && st.Code != lastCode:
			lastCode = st.Code
			_, _ = fmt.Fprintln(out, "Scan this QR code with WhatsApp (Linked devices):")
			qrterminal.GenerateHalfBlock(st.Code, qrterminal.L, out)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("session not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *app) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Start the WhatsApp session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			if err := c.Connect(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Session starting.")
			return nil
		}),
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Unlink this device from the WhatsApp account",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			if err := c.Logout(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Logged out.")
			return nil
		}),
	}
}
