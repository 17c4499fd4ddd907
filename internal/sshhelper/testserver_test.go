package sshhelper

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUsername = "legacy"
	testPassword = "s3cret"
)

// startTestSSHServer spins up a minimal in-process SSH server accepting
// password auth for testUsername/testPassword, supporting exec requests
// (echoing the command as stdout) and an "sftp" subsystem backed by
// pkg/sftp's server side, which serves the local filesystem (tests pass
// paths under t.TempDir()). It runs until the test ends (t.Cleanup closes
// the listener).
func startTestSSHServer(t *testing.T) (addr string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == testUsername && string(password) == testPassword {
				return nil, nil
			}
			return nil, errors.New("auth rejected")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleTestConn(conn, config)
		}
	}()

	return listener.Addr().String()
}

func handleTestConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go handleTestSession(channel, requests)
	}
}

func handleTestSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			unmarshalSSHString(req.Payload, &payload.Command)
			channel.Write([]byte(payload.Command))
			req.Reply(true, nil)
			channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		case "subsystem":
			var name string
			unmarshalSSHString(req.Payload, &name)
			if name == "sftp" {
				req.Reply(true, nil)
				server, err := sftp.NewServer(channel)
				if err == nil {
					server.Serve()
				}
				return
			}
			req.Reply(false, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

// unmarshalSSHString decodes the uint32-length-prefixed string the SSH wire
// protocol uses for exec/subsystem request payloads.
func unmarshalSSHString(payload []byte, out *string) {
	if len(payload) < 4 {
		return
	}
	n := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if 4+n > len(payload) {
		return
	}
	*out = string(payload[4 : 4+n])
}
