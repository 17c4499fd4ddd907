package sshhelper

import (
	"io"

	"github.com/pkg/sftp"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const kindSFTP registry.Kind = "sftp"

// sftpPayload is the native handle stored under an sftp_... id, a child
// resource of the session it was opened against.
type sftpPayload struct {
	client *sftp.Client
}

// openSFTP implements ssh.sftp_open({session_id}): layers an SFTP subsystem
// client on top of a live SSH session and registers it as the session's
// child, so ssh.disconnect tears both down together via the registry's
// parent/child eviction ordering.
func openSFTP(reg *registry.Registry, p *modules.Params) (any, error) {
	var sessionID string
	if err := p.Bind("session_id", 0, true, &sessionID); err != nil {
		return nil, err
	}

	entry, sess, err := lookupSession(reg, sessionID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	client := sess.client
	entry.Unlock()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}

	childEntry, err := reg.Create(kindSFTP, &sftpPayload{client: sftpClient}, sessionID, nil, releaseSFTP)
	if err != nil {
		sftpClient.Close()
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"sftp_id": childEntry.ID}, nil
}

func lookupSFTP(reg *registry.Registry, sftpID string) (*registry.Entry, *sftpPayload, error) {
	entry, ok := reg.Get(sftpID, kindSFTP)
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "sftp %q is not a live resource", sftpID)
	}
	payload, ok := entry.Payload().(*sftpPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "sftp %q has an unexpected payload type", sftpID)
	}
	return entry, payload, nil
}

// sftpPut implements ssh.sftp_put({sftp_id, remote_path, content_hex}).
func sftpPut(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID, remotePath, contentHex string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}
	if err := p.Bind("content_hex", 2, true, &contentHex); err != nil {
		return nil, err
	}

	entry, payload, err := lookupSFTP(reg, sftpID)
	if err != nil {
		return nil, err
	}
	content, err := decodeHex(contentHex)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	f, err := payload.client.Create(remotePath)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	defer f.Close()

	n, err := f.Write(content)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"bytes_written": n}, nil
}

// sftpGet implements ssh.sftp_get({sftp_id, remote_path}).
func sftpGet(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID, remotePath string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, payload, err := lookupSFTP(reg, sftpID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	f, err := payload.client.Open(remotePath)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"content_hex": encodeHex(content)}, nil
}

// sftpList implements ssh.sftp_list({sftp_id, remote_path}).
func sftpList(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID, remotePath string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, payload, err := lookupSFTP(reg, sftpID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	infos, err := payload.client.ReadDir(remotePath)
	if err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()

	names := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		names = append(names, map[string]any{
			"name":   info.Name(),
			"size":   info.Size(),
			"is_dir": info.IsDir(),
		})
	}
	return map[string]any{"entries": names}, nil
}

// sftpMkdir implements ssh.sftp_mkdir({sftp_id, remote_path}).
func sftpMkdir(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID, remotePath string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, payload, err := lookupSFTP(reg, sftpID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()
	if err := payload.client.Mkdir(remotePath); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// sftpRemove implements ssh.sftp_remove({sftp_id, remote_path}).
func sftpRemove(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID, remotePath string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	if err := p.Bind("remote_path", 1, true, &remotePath); err != nil {
		return nil, err
	}

	entry, payload, err := lookupSFTP(reg, sftpID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()
	if err := payload.client.Remove(remotePath); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// sftpClose implements ssh.sftp_close({sftp_id}): idempotent release of the
// SFTP subsession without touching the parent SSH session.
func sftpClose(reg *registry.Registry, p *modules.Params) (any, error) {
	var sftpID string
	if err := p.Bind("sftp_id", 0, true, &sftpID); err != nil {
		return nil, err
	}
	reg.Destroy(sftpID)
	return map[string]any{"success": true}, nil
}

func releaseSFTP(payload any) error {
	sftpPayload, ok := payload.(*sftpPayload)
	if !ok || sftpPayload.client == nil {
		return nil
	}
	return sftpPayload.client.Close()
}
