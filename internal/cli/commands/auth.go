package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"FromChat/internal/cli/api"
	"FromChat/internal/cli/bootstrap"
	"FromChat/internal/cli/crypto"
	"FromChat/internal/cli/repo"
	fsrepo "FromChat/internal/cli/repo/fs"
	"FromChat/internal/config"
)

type registerCmd struct{}

func (registerCmd) Name() string        { return "register" }
func (registerCmd) Description() string { return "Create an account and generate identity keys" }
func (registerCmd) Usage() string       { return "register <login> <password>" }

func (registerCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	auth := fsrepo.AuthFSStore{}
	res, err := bootstrap.NewAPI(cfg, auth).Register(ctx, args[0], args[1])
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			return errors.New("login already taken")
		}
		return err
	}
	return signIn(ctx, cfg, auth, res, args[1])
}

type loginCmd struct{}

func (loginCmd) Name() string        { return "login" }
func (loginCmd) Description() string { return "Login and restore identity keys" }
func (loginCmd) Usage() string       { return "login <login> <password>" }

func (loginCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	auth := fsrepo.AuthFSStore{}
	res, err := bootstrap.NewAPI(cfg, auth).Login(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return errors.New("invalid login or password")
		}
		return err
	}
	return signIn(ctx, cfg, auth, res, args[1])
}

// signIn сохраняет токен и поднимает ключи: создаёт, восстанавливает из бэкапа
// или пересоздаёт при расхождении с сервером.
func signIn(ctx context.Context, cfg *config.Config, auth repo.AuthStore, res *api.AuthResult, password string) error {
	if err := auth.Save(res.Token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := auth.SaveLogin(res.User.Username); err != nil {
		return fmt.Errorf("saving login: %w", err)
	}
	if err := auth.SaveUserID(res.User.Username, strconv.FormatInt(res.User.ID, 10)); err != nil {
		return fmt.Errorf("saving user id: %w", err)
	}

	logger := bootstrap.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, res.User.Username)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	sess := bootstrap.NewSession(cfg, bootstrap.NewAPI(cfg, auth), store, logger)
	defer func() { _ = sess.Teardown(context.Background(), false) }()
	outcome, err := sess.Login(ctx, password)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthenticationFailed) {
			return errors.New("key backup cannot be decrypted with this password")
		}
		return fmt.Errorf("identity keys: %w", err)
	}
	kp, err := sess.KeyPair()
	if err != nil {
		return err
	}
	defer kp.Wipe()

	fmt.Fprintf(Out, "Logged in as %s (id %d)\n", res.User.Username, res.User.ID)
	fmt.Fprintf(Out, "Identity %s, public key %s\n", outcome, crypto.Fingerprint(kp.PublicKey[:]))
	return nil
}

type logoutCmd struct{}

func (logoutCmd) Name() string        { return "logout" }
func (logoutCmd) Description() string { return "Forget the token and cached keys" }
func (logoutCmd) Usage() string       { return "logout" }

func (logoutCmd) Run(ctx context.Context, cfg *config.Config, _ []string) error {
	auth := fsrepo.AuthFSStore{}
	if login, err := auth.LoadLogin(); err == nil {
		store, closeStore, err := bootstrap.OpenStore(ctx, cfg, login)
		if err != nil {
			return err
		}
		sess := bootstrap.NewSession(cfg, bootstrap.NewAPI(cfg, auth), store, bootstrap.NewLogger(cfg))
		err = sess.Teardown(ctx, true)
		_ = closeStore()
		if err != nil {
			return fmt.Errorf("clearing cached keys: %w", err)
		}
	}
	if err := auth.Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	fmt.Fprintln(Out, "Logged out")
	return nil
}

type passwdCmd struct{}

func (passwdCmd) Name() string        { return "passwd" }
func (passwdCmd) Description() string { return "Change password and re-encrypt the key backup" }
func (passwdCmd) Usage() string       { return "passwd <current> <new>" }

func (passwdCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 || args[1] == "" {
		return ErrUsage
	}
	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Resume(ctx); err != nil {
		return err
	}
	if err := app.API.ChangePassword(ctx, args[0], args[1]); err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Code == http.StatusForbidden {
			return errors.New("current password is wrong")
		}
		return err
	}
	if err := app.Session.ChangePassword(ctx, args[1]); err != nil {
		// пароль на сервере уже сменён, бэкап ключа остаётся под старым паролем
		return fmt.Errorf("password changed, but key backup was not updated: %w", err)
	}
	fmt.Fprintln(Out, "Password changed")
	return nil
}

func init() {
	RegisterCmd(registerCmd{})
	RegisterCmd(loginCmd{})
	RegisterCmd(logoutCmd{})
	RegisterCmd(passwdCmd{})
}
