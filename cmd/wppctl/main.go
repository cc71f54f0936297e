package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/wpplus/internal/config"
	"github.com/matheus3301/wpplus/internal/session"
	"github.com/matheus3301/wpplus/internal/tui/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := rootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func rootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	root := &cobra.Command{
		Use:          "wppctl",
		Short:        "Control a wppd daemon",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("WPP")
			v.AutomaticEnv()
			cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("session", "", "session name (overrides config default)")
	flags.String("addr", "", "daemon address (default: from the profile lock or config)")
	flags.Bool("json", false, "output in JSON format")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	for _, name := range []string{"session", "addr", "json", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.statusCmd(),
		a.authCmd(),
		a.connectCmd(),
		a.logoutCmd(),
		a.sendCmd(),
		a.scheduledCmd(),
		a.contactsCmd(),
		a.chatsCmd(),
		a.messagesCmd(),
		a.quickRepliesCmd(),
	)
	return root
}

func (a *app) sessionName() (string, error) {
	return session.ResolveName(a.v.GetString("session"), a.cfg)
}

func (a *app) client() (*client.Client, error) {
	if addr := a.v.GetString("addr"); addr != "" {
		return client.New(addr), nil
	}
	name, err := a.sessionName()
	if err != nil {
		return nil, err
	}
	return client.New(client.ResolveAddr(name, a.cfg)), nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
}

func (a *app) jsonOut() bool {
	return a.v.GetBool("json")
}

// run resolves the client and a timeout context for fn.
func (a *app) run(fn func(ctx context.Context, c *client.Client, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := a.client()
		if err != nil {
			return err
		}
		ctx, cancel := a.context(cmd)
		defer cancel()
		return fn(ctx, c, cmd.OutOrStdout(), args)
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func localTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
