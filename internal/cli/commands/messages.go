package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"FromChat/internal/cli/bootstrap"
	"FromChat/internal/cli/chat"
	"FromChat/internal/config"
	"FromChat/internal/transport"
)

// withChat открывает окружение пользователя, поднимает ключи и сокет и вызывает fn.
func withChat(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, svc *chat.Service) error) error {
	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Resume(ctx); err != nil {
		return err
	}
	client := app.NewTransport(transport.NewRouter(app.Logger))
	stop := bootstrap.Start(ctx, client)
	defer stop()
	return fn(ctx, app.Chat(client))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printMessage(w io.Writer, m *chat.Message) {
	dir := "<-"
	peer := m.SenderID
	if m.Outgoing {
		dir = "->"
		peer = m.RecipientID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s %d", m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04"), dir, peer)
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, " (reply to #%d)", *m.ReplyTo)
	}
	if m.EditedAt != nil {
		b.WriteString(" (edited)")
	}
	if m.Unreadable {
		b.WriteString(": [unreadable]")
	} else {
		b.WriteString(": " + m.Text)
	}
	for _, f := range m.Files {
		if f.Unreadable {
			fmt.Fprintf(&b, "\n    file %s [unreadable]", f.Name)
			continue
		}
		fmt.Fprintf(&b, "\n    file %s (%d bytes)", f.Name, len(f.Data))
	}
	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s by %d", r.Emoji, r.UserID))
		}
		b.WriteString("\n    reactions: " + strings.Join(parts, ", "))
	}
	fmt.Fprintln(w, b.String())
}

type sendCmd struct{}

func (sendCmd) Section() string     { return sectionMessages }
func (sendCmd) Name() string        { return "send" }
func (sendCmd) Description() string { return "Send an encrypted message, optionally with files" }
func (sendCmd) Usage() string       { return "send [-reply <id>] <user_id> <text> [file...]" }

func (sendCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	reply := fs.Int64("reply", 0, "message id to reply to")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	args = fs.Args()
	if len(args) < 2 {
		return ErrUsage
	}
	to, err := parseID(args[0])
	if err != nil {
		return err
	}
	var opts chat.Options
	if *reply > 0 {
		opts.ReplyTo = reply
	}
	for _, p := range args[2:] {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		opts.Files = append(opts.Files, chat.Attachment{Name: filepath.Base(p), Data: data})
	}
	return withChat(ctx, cfg, func(ctx context.Context, svc *chat.Service) error {
		m, err := svc.Send(ctx, to, args[1], opts)
		if err != nil {
			return err
		}
		printMessage(Out, m)
		return nil
	})
}

type editCmd struct{}

func (editCmd) Section() string     { return sectionMessages }
func (editCmd) Name() string        { return "edit" }
func (editCmd) Description() string { return "Replace the text of your message" }
func (editCmd) Usage() string       { return "edit <user_id> <message_id> <text>" }

func (editCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return ErrUsage
	}
	peer, err := parseID(args[0])
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	return withChat(ctx, cfg, func(ctx context.Context, svc *chat.Service) error {
		m, err := svc.Edit(ctx, id, peer, args[2])
		if err != nil {
			return err
		}
		printMessage(Out, m)
		return nil
	})
}

type deleteCmd struct{}

func (deleteCmd) Section() string     { return sectionMessages }
func (deleteCmd) Name() string        { return "delete" }
func (deleteCmd) Description() string { return "Delete your message" }
func (deleteCmd) Usage() string       { return "delete <message_id>" }

func (deleteCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withChat(ctx, cfg, func(ctx context.Context, svc *chat.Service) error {
		if err := svc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(Out, "Deleted #%d\n", id)
		return nil
	})
}

type reactCmd struct{}

func (reactCmd) Section() string     { return sectionMessages }
func (reactCmd) Name() string        { return "react" }
func (reactCmd) Description() string { return "Toggle a reaction on a message" }
func (reactCmd) Usage() string       { return "react <message_id> <emoji>" }

func (reactCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withChat(ctx, cfg, func(ctx context.Context, svc *chat.Service) error {
		r, err := svc.React(ctx, id, args[1])
		if err != nil {
			return err
		}
		if r.Removed {
			fmt.Fprintf(Out, "Removed %s from #%d\n", r.Emoji, r.MessageID)
		} else {
			fmt.Fprintf(Out, "Added %s to #%d\n", r.Emoji, r.MessageID)
		}
		return nil
	})
}

type historyCmd struct{}

func (historyCmd) Section() string     { return sectionMessages }
func (historyCmd) Name() string        { return "history" }
func (historyCmd) Description() string { return "Show the conversation with a user, newest first" }
func (historyCmd) Usage() string       { return "history <user_id> [limit]" }

func (historyCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	peer, err := parseID(args[0])
	if err != nil {
		return err
	}
	limit := chat.DefaultHistoryLimit
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil || limit <= 0 {
			return ErrUsage
		}
	}
	return withChat(ctx, cfg, func(ctx context.Context, svc *chat.Service) error {
		msgs, err := svc.History(ctx, peer, limit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Fprintln(Out, "No messages")
			return nil
		}
		for _, m := range msgs {
			printMessage(Out, m)
		}
		return nil
	})
}

func init() {
	RegisterCmd(sendCmd{})
	RegisterCmd(editCmd{})
	RegisterCmd(deleteCmd{})
	RegisterCmd(reactCmd{})
	RegisterCmd(historyCmd{})
}
