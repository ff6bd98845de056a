package commands

import (
	"context"
	"fmt"

	"FromChat/internal/cli/bootstrap"
	"FromChat/internal/cli/crypto"
	"FromChat/internal/config"
)

type keysCmd struct{}

func (keysCmd) Name() string        { return "keys" }
func (keysCmd) Description() string { return "Show identity key state and fingerprint" }
func (keysCmd) Usage() string       { return "keys" }

func (keysCmd) Run(ctx context.Context, cfg *config.Config, _ []string) error {
	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintf(Out, "User: %s (id %d)\n", app.Login, app.UserID)
	if err := app.Resume(ctx); err != nil {
		fmt.Fprintf(Out, "Keys: %s (%v)\n", app.Session.State(), err)
		return nil
	}
	kp, err := app.Session.KeyPair()
	if err != nil {
		return err
	}
	defer kp.Wipe()
	fmt.Fprintf(Out, "Keys: %s, public key %s\n", app.Session.State(), crypto.Fingerprint(kp.PublicKey[:]))
	return nil
}

func init() { RegisterCmd(keysCmd{}) }
