// Package smtphelper implements the "smtp" helper module: SMTP sessions
// registered as resource-registry entries, backed by the standard library's
// net/smtp -- net/smtp's Client already covers the legacy
// connect/auth/send/quit contract this helper stands in for (see DESIGN.md).
package smtphelper

import (
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const kindSession registry.Kind = "session"

// sessionPayload is the native handle stored under a session_... id.
type sessionPayload struct {
	client *smtp.Client
	host   string
}

// connectSession implements smtp.connect({host, port, username, password}):
// dials the server and, if credentials are given, authenticates with PLAIN
// auth, returning {session_id}.
func connectSession(reg *registry.Registry, p *modules.Params) (any, error) {
	var host, username, password string
	var port int
	if err := p.Bind("host", 0, true, &host); err != nil {
		return nil, err
	}
	if err := p.Bind("port", 1, false, &port); err != nil {
		return nil, err
	}
	if err := p.Bind("username", 2, false, &username); err != nil {
		return nil, err
	}
	if err := p.Bind("password", 3, false, &password); err != nil {
		return nil, err
	}
	if port == 0 {
		port = 25
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	if username != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
	}

	entry, err := reg.Create(kindSession, &sessionPayload{client: client, host: host}, "", map[string]any{
		"host": host,
		"port": port,
	}, releaseSession)
	if err != nil {
		client.Close()
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"session_id": entry.ID, "connected": true}, nil
}

func lookupSession(reg *registry.Registry, sessionID string) (*registry.Entry, *sessionPayload, error) {
	entry, ok := reg.Get(sessionID, kindSession)
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "session %q is not a live resource", sessionID)
	}
	payload, ok := entry.Payload().(*sessionPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "session %q has an unexpected payload type", sessionID)
	}
	return entry, payload, nil
}

// sendMail implements smtp.send({session_id, from, to, subject, body}): the
// whole MAIL/RCPT/DATA conversation against the already-open client.
func sendMail(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, from, subject, body string
	var to []string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("from", 1, true, &from); err != nil {
		return nil, err
	}
	if err := p.Bind("to", 2, true, &to); err != nil {
		return nil, err
	}
	if err := p.Bind("subject", 3, false, &subject); err != nil {
		return nil, err
	}
	if err := p.Bind("body", 4, false, &body); err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, modules.NewError(modules.KindInvalidParams, "smtp.send requires at least one recipient")
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	if err := sess.client.Mail(from); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	for _, rcpt := range to {
		if err := sess.client.Rcpt(rcpt); err != nil {
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
	}

	w, err := sess.client.Data()
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	message := buildMessage(from, to, subject, body)
	if _, err := w.Write(message); err != nil {
		w.Close()
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	if err := w.Close(); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()

	return map[string]any{"success": true}, nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// disconnectSession implements smtp.disconnect({session_id}): idempotent,
// sends QUIT before tearing down the registry entry.
func disconnectSession(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	reg.Destroy(sessionID)
	return map[string]any{"success": true}, nil
}

func releaseSession(payload any) error {
	sess, ok := payload.(*sessionPayload)
	if !ok || sess.client == nil {
		return nil
	}
	return sess.client.Quit()
}
