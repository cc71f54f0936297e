package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/wpplus/internal/tui/client"
	"github.com/spf13/cobra"
)

// parseWhen accepts RFC3339, a local "2006-01-02 15:04" time, or a
// duration from now such as "+90m".
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC3339, \"YYYY-MM-DD HH:MM\" or +duration)", s)
}

func (a *app) scheduledCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scheduled",
		Aliases: []string{"sched"},
		Short:   "Manage scheduled messages",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled messages",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			list, err := c.ListScheduled(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, list)
			}
			w := table(out)
			_, _ = fmt.Fprintln(w, "ID\tWHEN\tTO\tSTATUS\tCONTENT\tERROR")
			for _, m := range list {
				to := m.ContactName
				if to == "" {
					to = m.ContactRemoteID
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, localTime(m.ScheduledAt), to, m.Status, strings.Join(strings.Fields(m.Content), " "), m.LastError)
			}
			return w.Flush()
		}),
	}

	var contactID, at string
	create := &cobra.Command{
		Use:   "create <message...>",
		Short: "Schedule a message for a contact",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			when, err := parseWhen(at, time.Now())
			if err != nil {
				return err
			}
			m, err := c.CreateScheduled(ctx, contactID, strings.Join(args, " "), when)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, m)
			}
			_, _ = fmt.Fprintf(out, "Scheduled %s for %s\n", m.ID, localTime(m.ScheduledAt))
			return nil
		}),
	}
	create.Flags().StringVar(&contactID, "contact", "", "contact id (see `wppctl contacts list`)")
	create.Flags().StringVar(&at, "at", "", "send time: RFC3339, \"YYYY-MM-DD HH:MM\" or +duration")
	_ = create.MarkFlagRequired("contact")
	_ = create.MarkFlagRequired("at")

	var newContent, newAt string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a pending message",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			var content *string
			var when *time.Time
			if newContent != "" {
				content = &newContent
			}
			if newAt != "" {
				t, err := parseWhen(newAt, time.Now())
				if err != nil {
					return err
				}
				when = &t
			}
			if content == nil && when == nil {
				return errors.New("nothing to update (pass --content and/or --at)")
			}
			m, err := c.UpdateScheduled(ctx, args[0], content, when)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, m)
			}
			_, _ = fmt.Fprintf(out, "Updated %s, due %s\n", m.ID, localTime(m.ScheduledAt))
			return nil
		}),
	}
	update.Flags().StringVar(&newContent, "content", "", "new message text")
	update.Flags().StringVar(&newAt, "at", "", "new send time")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pending message",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			if err := c.DeleteScheduled(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Deleted.")
			return nil
		}),
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Dispatch due messages now",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			rep, err := c.RunScheduler(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, rep)
			}
			if rep.Skipped {
				_, _ = fmt.Fprintln(out, "A dispatch pass is already running.")
				return nil
			}
			_, _ = fmt.Fprintf(out, "Due %d, sent %d, failed %d\n", rep.Due, rep.Sent, rep.Failed)
			return nil
		}),
	}

	cmd.AddCommand(list, create, update, del, run)
	return cmd
}

func (a *app) contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage contacts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts with their pending message counts",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			list, err := c.ListContacts(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, list)
			}
			w := table(out)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tREMOTE ID\tSCHEDULED")
			for _, ct := range list {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", ct.ID, ct.Name, ct.RemoteID, ct.ScheduledCount)
			}
			return w.Flush()
		}),
	}

	add := &cobra.Command{
		Use:   "add <phone> <name...>",
		Short: "Add or rename a contact",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			ct, err := c.CreateContact(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, ct)
			}
			_, _ = fmt.Fprintf(out, "Saved %s (%s)\n", ct.Name, ct.ID)
			return nil
		}),
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Import the linked account's address book",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			n, err := c.SyncContacts(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Synced %d contacts.\n", n)
			return nil
		}),
	}

	cmd.AddCommand(list, add, sync)
	return cmd
}
