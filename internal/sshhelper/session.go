// Package sshhelper implements the "ssh" helper module: SSH sessions and the
// SFTP subsessions layered on top of them, backed by golang.org/x/crypto/ssh
// and github.com/pkg/sftp.
package sshhelper

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const kindSession registry.Kind = "session"

// sessionPayload is the native handle stored under a session_... id: the
// *ssh.Client, whose Close also closes the underlying network connection.
type sessionPayload struct {
	client *ssh.Client
}

// connectSession implements ssh.connect({host, port, username, password,
// private_key, timeout}): dials and authenticates an SSH session, returning
// {session_id}. Host key verification is not checked -- the legacy callers
// this daemon stands in for never carried a known_hosts file either.
func connectSession(reg *registry.Registry, p *modules.Params) (any, error) {
	var host, username, password, privateKey string
	var port, timeoutSeconds int
	if err := p.Bind("host", 0, true, &host); err != nil {
		return nil, err
	}
	if err := p.Bind("port", 1, false, &port); err != nil {
		return nil, err
	}
	if err := p.Bind("username", 2, true, &username); err != nil {
		return nil, err
	}
	if err := p.Bind("password", 3, false, &password); err != nil {
		return nil, err
	}
	if err := p.Bind("private_key", 4, false, &privateKey); err != nil {
		return nil, err
	}
	if err := p.Bind("timeout", 5, false, &timeoutSeconds); err != nil {
		return nil, err
	}
	if port == 0 {
		port = 22
	}
	if timeoutSeconds == 0 {
		timeoutSeconds = 30
	}

	auths, err := authMethods(password, privateKey)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            username,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Duration(timeoutSeconds) * time.Second,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	entry, err := reg.Create(kindSession, &sessionPayload{client: client}, "", map[string]any{
		"host": host,
		"port": port,
	}, releaseSession)
	if err != nil {
		client.Close()
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"session_id": entry.ID, "connected": true}, nil
}

func authMethods(password, privateKey string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if privateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(privateKey))
		if err != nil {
			return nil, modules.NewError(modules.KindInvalidParams, "private_key: %v", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, modules.NewError(modules.KindInvalidParams, "ssh.connect requires password or private_key")
	}
	return methods, nil
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

// execSession implements ssh.exec({session_id, command}): runs command over
// a new channel on the session and returns {stdout, stderr, exit_status}.
func execSession(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, command string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("command", 1, true, &command); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	client := sess.client
	entry.Unlock()

	ch, err := client.NewSession()
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	defer ch.Close()

	var stdout, stderr bytes.Buffer
	ch.Stdout = &stdout
	ch.Stderr = &stderr

	exitStatus := 0
	if err := ch.Run(command); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitStatus = exitErr.ExitStatus()
		} else {
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
	}
	entry.Touch()

	return map[string]any{
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"exit_status": exitStatus,
	}, nil
}

// disconnectSession implements ssh.disconnect({session_id}): idempotent
// teardown of the session and any still-open SFTP children.
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
	return sess.client.Close()
}
