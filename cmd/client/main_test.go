package main

import (
	"bytes"
	"testing"

	"FromChat/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf, &config.Config{
		ServerURL: "https://chat.example:8443",
		SocketURL: "wss://chat.example:8443/chat/ws",
	})
	out := buf.String()
	assert.Contains(t, out, "FromChat CLI dev (built unknown)")
	assert.Contains(t, out, "Server: https://chat.example:8443")
	assert.Contains(t, out, "Socket: wss://chat.example:8443/chat/ws")

	buf.Reset()
	printVersion(&buf, &config.Config{})
	assert.Contains(t, buf.String(), "Server: (not configured)")
}
