// Package api содержит HTTP-клиент сервера FromChat: аутентификация и реестр ключей
// (публичный ключ и резервная копия приватного ключа).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"FromChat/internal/cli/crypto"
)

// ErrUnauthorized возвращается при ответе 401: токен отсутствует, истёк или неверны логин/пароль.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError описывает неуспешный (не 2xx) ответ сервера.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Code, e.Body)
}

// User: публичные данные пользователя из ответа login/register.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthResult: ответ на POST /login и POST /register.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type publicKeyBody struct {
	PublicKey []byte `json:"publicKey"`
}

type backupBody struct {
	Blob *string `json:"blob"`
}

// Client выполняет запросы к серверу. Token вызывается перед каждым запросом;
// пустая строка означает запрос без авторизации. Повторов нет: ошибка возвращается вызывающему.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   func() string
}

// New создаёт клиента для baseURL (например, http://localhost:8081).
func New(baseURL string, token func() string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http.DefaultClient,
		Token:   token,
	}
}

// Register создаёт учётную запись и возвращает токен.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	var res AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/register", credentials{username, password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login аутентифицирует пользователя и возвращает токен.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var res AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/login", credentials{username, password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ChangePassword меняет пароль учётной записи. Резервную копию ключа вызывающий
// перешифровывает сам (session.Manager.ChangePassword).
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.doJSON(ctx, http.MethodPost, "/change-password", changePasswordBody{current, next}, nil)
}

// PublicKey возвращает зарегистрированный публичный ключ текущего пользователя или nil.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	var res publicKeyBody
	if err := c.doJSON(ctx, http.MethodGet, "/crypto/public-key", nil, &res); err != nil {
		return nil, err
	}
	return res.PublicKey, nil
}

// PublicKeyOf возвращает публичный ключ пользователя userID или nil, если он не зарегистрирован.
func (c *Client) PublicKeyOf(ctx context.Context, userID int64) ([]byte, error) {
	var res publicKeyBody
	path := "/crypto/public-key/of/" + strconv.FormatInt(userID, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.PublicKey, nil
}

// SetPublicKey регистрирует публичный ключ текущего пользователя.
func (c *Client) SetPublicKey(ctx context.Context, pub []byte) error {
	if len(pub) == 0 {
		return errors.New("empty public key")
	}
	return c.doJSON(ctx, http.MethodPost, "/crypto/public-key", publicKeyBody{PublicKey: pub}, nil)
}

// Backup возвращает резервную копию ключа или nil, если её нет.
func (c *Client) Backup(ctx context.Context) (*crypto.BackupBlob, error) {
	var res backupBody
	if err := c.doJSON(ctx, http.MethodGet, "/crypto/backup", nil, &res); err != nil {
		return nil, err
	}
	if res.Blob == nil || *res.Blob == "" {
		return nil, nil
	}
	return crypto.ParseBackupBlob(*res.Blob)
}

// SetBackup загружает резервную копию; blob передаётся JSON-строкой внутри {"blob": ...}.
func (c *Client) SetBackup(ctx context.Context, blob *crypto.BackupBlob) error {
	s, err := blob.Marshal()
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, "/crypto/backup", backupBody{Blob: &s}, nil)
}

// doJSON отправляет in (если не nil) как JSON и декодирует ответ в out (если не nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
