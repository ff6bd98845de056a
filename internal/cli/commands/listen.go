package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"FromChat/internal/cli/bootstrap"
	"FromChat/internal/cli/chat"
	"FromChat/internal/config"
	"FromChat/internal/transport"
)

type listenCmd struct{}

func (listenCmd) Section() string     { return sectionMessages }
func (listenCmd) Name() string        { return "listen" }
func (listenCmd) Description() string { return "Print incoming messages and events until interrupted" }
func (listenCmd) Usage() string       { return "listen" }

func (listenCmd) Run(ctx context.Context, cfg *config.Config, _ []string) error {
	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Resume(ctx); err != nil {
		return err
	}

	router := transport.NewRouter(app.Logger)
	client := app.NewTransport(router)
	svc := app.Chat(client)

	// push-обработчики идут на горутине чтения; вывод сериализуем
	var mu sync.Mutex
	router.OnPush(func(p transport.Push) {
		ev, ok := svc.HandlePush(ctx, p)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printEvent(Out, ev)
	})
	router.OnCallSignal(func(cs *transport.CallSignal) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(Out, "call %s from %d\n", cs.Kind, cs.FromID)
	})

	stop := bootstrap.Start(ctx, client)
	defer stop()
	fmt.Fprintf(Out, "Listening as %s (id %d), Ctrl+C to stop\n", app.Login, app.UserID)
	<-ctx.Done()
	return nil
}

func printEvent(w io.Writer, ev chat.Event) {
	switch ev.Kind {
	case chat.EventNew:
		printMessage(w, ev.Message)
	case chat.EventEdited:
		fmt.Fprint(w, "edited ")
		printMessage(w, ev.Message)
	case chat.EventDeleted:
		fmt.Fprintf(w, "#%d deleted\n", ev.MessageID)
	case chat.EventReaction:
		verb := "reacted"
		if ev.Reaction.Removed {
			verb = "removed reaction"
		}
		fmt.Fprintf(w, "%d %s %s on #%d\n", ev.Reaction.UserID, verb, ev.Reaction.Emoji, ev.MessageID)
	case chat.EventUserDeleted:
		fmt.Fprintf(w, "user %d deleted the account\n", ev.UserID)
	}
}
