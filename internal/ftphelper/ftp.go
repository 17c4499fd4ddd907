// Package ftphelper implements the "ftp" helper module: FTP sessions
// registered as resource-registry entries, backed by github.com/jlaffaye/ftp.
package ftphelper

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const kindSession registry.Kind = "session"

// sessionPayload is the native handle stored under a session_... id.
type sessionPayload struct {
	conn *ftp.ServerConn
}

// connectSession implements ftp.connect({host, port, username, password,
// timeout}): dials, logs in, and returns {session_id}.
func connectSession(reg *registry.Registry, p *modules.Params) (any, error) {
	var host, username, password string
	var port, timeoutSeconds int
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
	if err := p.Bind("timeout", 4, false, &timeoutSeconds); err != nil {
		return nil, err
	}
	if port == 0 {
		port = 21
	}
	if timeoutSeconds == 0 {
		timeoutSeconds = 30
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(time.Duration(timeoutSeconds)*time.Second))
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	if username != "" {
		if err := conn.Login(username, password); err != nil {
			conn.Quit()
			return nil, modules.Wrap(modules.KindDriverError, err)
		}
	}

	entry, err := reg.Create(kindSession, &sessionPayload{conn: conn}, "", map[string]any{
		"host": host,
		"port": port,
	}, releaseSession)
	if err != nil {
		conn.Quit()
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

// uploadFile implements ftp.put({session_id, remote_path, content_hex}).
func uploadFile(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, remotePath, contentHex string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}
	if err := p.Bind("content_hex", 2, true, &contentHex); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}
	content, err := decodeHex(contentHex)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()
	if err := sess.conn.Stor(remotePath, bytes.NewReader(content)); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// downloadFile implements ftp.get({session_id, remote_path}).
func downloadFile(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, remotePath string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	resp, err := sess.conn.Retr(remotePath)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	defer resp.Close()

	content, err := io.ReadAll(resp)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"content_hex": encodeHex(content)}, nil
}

// listDirectory implements ftp.list({session_id, remote_path}).
func listDirectory(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, remotePath string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, false, &remotePath); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	entries, err := sess.conn.List(remotePath)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"name":   e.Name,
			"size":   e.Size,
			"is_dir": e.Type == ftp.EntryTypeFolder,
		})
	}
	return map[string]any{"entries": out}, nil
}

// makeDirectory implements ftp.mkdir({session_id, remote_path}).
func makeDirectory(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, remotePath string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()
	if err := sess.conn.MakeDir(remotePath); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// removeFile implements ftp.remove({session_id, remote_path}).
func removeFile(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID, remotePath string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()
	if err := sess.conn.Delete(remotePath); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// disconnectSession implements ftp.disconnect({session_id}): idempotent.
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
	if !ok || sess.conn == nil {
		return nil
	}
	return sess.conn.Quit()
}
