package smtphelper

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

func objParams(t *testing.T, fields map[string]any) *modules.Params {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	p, err := modules.NewParamsFromRaw(raw)
	require.NoError(t, err)
	return p
}

// startFakeSMTPServer accepts one connection and plays a scripted
// conversation: greet, then respond 250 to EHLO/HELO/MAIL/RCPT, 354 to DATA,
// 250 after the terminating "." line, and 221 to QUIT. Good enough to drive
// net/smtp's Client through connect/send/disconnect without a real MTA.
func startFakeSMTPServer(t *testing.T) (host string, port int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		writeLine(conn, "220 fake.smtp ESMTP")

		reader := bufio.NewReader(conn)
		inData := false
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")

			switch {
			case inData:
				if line == "." {
					inData = false
					writeLine(conn, "250 OK")
				}
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				writeLine(conn, "250 fake.smtp")
			case strings.HasPrefix(line, "MAIL FROM"):
				writeLine(conn, "250 OK")
			case strings.HasPrefix(line, "RCPT TO"):
				writeLine(conn, "250 OK")
			case line == "DATA":
				inData = true
				writeLine(conn, "354 go ahead")
			case line == "QUIT":
				writeLine(conn, "221 bye")
				return
			default:
				writeLine(conn, "500 unrecognized")
			}
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func writeLine(conn net.Conn, s string) {
	conn.Write([]byte(s + "\r\n"))
}

func TestConnectSendDisconnect(t *testing.T) {
	host, port := startFakeSMTPServer(t)
	reg := registry.New()

	res, err := connectSession(reg, objParams(t, map[string]any{
		"host": host,
		"port": port,
	}))
	require.NoError(t, err)
	sessionID := res.(map[string]any)["session_id"].(string)
	assert.Contains(t, sessionID, "session_")

	_, err = sendMail(reg, objParams(t, map[string]any{
		"session_id": sessionID,
		"from":       "sender@example.com",
		"to":         []string{"recipient@example.com"},
		"subject":    "hello",
		"body":       "hi there",
	}))
	require.NoError(t, err)

	_, err = disconnectSession(reg, objParams(t, map[string]any{"session_id": sessionID}))
	require.NoError(t, err)

	_, err = disconnectSession(reg, objParams(t, map[string]any{"session_id": sessionID}))
	assert.NoError(t, err)
}

func TestSendRequiresRecipient(t *testing.T) {
	reg := registry.New()
	entry, err := reg.Create(kindSession, &sessionPayload{}, "", nil, nil)
	require.NoError(t, err)

	_, err = sendMail(reg, objParams(t, map[string]any{
		"session_id": entry.ID,
		"from":       "sender@example.com",
		"to":         []string{},
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindInvalidParams, modules.KindOf(err))
}

func TestSendAgainstUnknownSessionIsNotFound(t *testing.T) {
	reg := registry.New()
	_, err := sendMail(reg, objParams(t, map[string]any{
		"session_id": "session_does-not-exist",
		"from":       "sender@example.com",
		"to":         []string{"recipient@example.com"},
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindNotFound, modules.KindOf(err))
}

func TestConnectRejectsUnreachableHost(t *testing.T) {
	reg := registry.New()
	_, err := connectSession(reg, objParams(t, map[string]any{
		"host": "127.0.0.1",
		"port": 1,
	}))
	require.Error(t, err)
	assert.Equal(t, modules.KindDriverError, modules.KindOf(err))
}

func TestBuildMessageIncludesHeaders(t *testing.T) {
	msg := string(buildMessage("a@example.com", []string{"b@example.com", "c@example.com"}, "subj", "body text"))
	assert.Contains(t, msg, "From: a@example.com")
	assert.Contains(t, msg, "To: b@example.com, c@example.com")
	assert.Contains(t, msg, "Subject: subj")
	assert.Contains(t, msg, "body text")
}

func TestModuleExposesAllOperations(t *testing.T) {
	m := New(registry.New())
	assert.Equal(t, "smtp", m.Name())
	for _, name := range []string{"connect", "send", "disconnect"} {
		_, ok := m.Functions()[name]
		assert.True(t, ok, name)
	}
}
