package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matheus3301/wpplus/internal/tui/client"
	"github.com/spf13/cobra"
)

func (a *app) sendCmd() *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "send <phone> [message...]",
		Short: "Send a message now",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			text := strings.Join(args[1:], " ")
			var (
				id  string
				err error
			)
			switch {
			case template != "":
				id, err = c.SendTemplate(ctx, args[0], template)
			case strings.TrimSpace(text) == "":
				return errors.New("message is empty (pass text or --template)")
			default:
				id, err = c.Send(ctx, args[0], text)
			}
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, map[string]any{"ok": true, "messageId": id})
			}
			_, _ = fmt.Fprintf(out, "Sent %s\n", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&template, "template", "", "quick reply id to send instead of text")
	return cmd
}

func (a *app) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List mirrored chats",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			chats, err := c.ListChats(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, chats)
			}
			w := table(out)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tREMOTE ID\tMESSAGES\tUPDATED")
			for _, ch := range chats {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", ch.ID, ch.Name, ch.RemoteID, ch.MessageCount, localTime(ch.UpdatedAt))
			}
			return w.Flush()
		}),
	}
}

func (a *app) messagesCmd() *cobra.Command {
	var (
		cursor string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "Show one page of a chat's history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			page, err := c.ListMessages(ctx, args[0], cursor, limit)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, page)
			}
			for _, m := range page.Items {
				sender := m.Sender
				if m.FromMe {
					sender = "me"
				}
				body := m.Body
				if m.MediaType != "" {
					body = strings.TrimSpace(fmt.Sprintf("[%s] %s", m.MediaType, body))
				}
				_, _ = fmt.Fprintf(out, "%s  %-20s %s\n", localTime(m.Timestamp), sender, body)
			}
			if page.NextCursor != "" {
				_, _ = fmt.Fprintf(out, "-- more: --cursor %s\n", page.NextCursor)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue after this message id")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (max 100)")
	return cmd
}

func (a *app) quickRepliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "quick-replies",
		Aliases: []string{"qr"},
		Short:   "Manage quick reply templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, _ []string) error {
			list, err := c.ListQuickReplies(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, list)
			}
			w := table(out)
			_, _ = fmt.Fprintln(w, "ID\tSHORTCUT\tCONTENT")
			for _, q := range list {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", q.ID, q.Shortcut, q.Content)
			}
			return w.Flush()
		}),
	}

	add := &cobra.Command{
		Use:   "add <shortcut> <content...>",
		Short: "Save a template",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			q, err := c.CreateQuickReply(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return outputJSON(out, q)
			}
			_, _ = fmt.Fprintf(out, "Saved %s (%s)\n", q.Shortcut, q.ID)
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			if err := c.DeleteQuickReply(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Deleted.")
			return nil
		}),
	}

	cmd.AddCommand(list, add, del)
	return cmd
}
