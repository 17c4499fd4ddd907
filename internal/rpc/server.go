package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/helperd/helperd/internal/config"
	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
	"github.com/helperd/helperd/internal/telemetry"
	"golang.org/x/mod/semver"
)

// serverMajorVersion is bumped when the wire envelope changes incompatibly.
// Used by the version/compatibility handshake.
const serverMajorVersion = "1"

// Server is the request daemon: accept loop, per-connection framing, and
// graceful shutdown.
type Server struct {
	cfg        *config.Config
	dispatcher *Dispatcher
	metrics    *Metrics
	telemetry  *telemetry.Providers
	reg        *registry.Registry

	mu       sync.Mutex
	listener net.Listener
	endpoint string

	connSemaphore chan struct{}
	shutdownOnce  sync.Once
	shutdownCh    chan struct{}
	readyCh       chan struct{}
	wg            sync.WaitGroup
}

// NewServer builds a Server ready to Start. reg is passed through so the
// health surface can report resource counts per kind.
func NewServer(cfg *config.Config, dispatcher *Dispatcher, metrics *Metrics, tel *telemetry.Providers, reg *registry.Registry) *Server {
	return &Server{
		cfg:           cfg,
		dispatcher:    dispatcher,
		metrics:       metrics,
		telemetry:     tel,
		reg:           reg,
		connSemaphore: make(chan struct{}, cfg.Workers),
		shutdownCh:    make(chan struct{}),
		readyCh:       make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the listener is accepting
// connections, letting callers (tests, `check`) synchronize on startup.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Start opens the endpoint, publishes endpoint discovery info, and runs the
// accept loop until ctx is canceled or Stop is called. It returns once the
// accept loop has exited.
func (s *Server) Start(ctx context.Context) error {
	ln, endpoint, err := listenEndpoint(s.cfg.SocketPath, s.cfg.TCPAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.endpoint = endpoint
	s.mu.Unlock()

	if err := publishEndpointInfo(s.cfg.EndpointInfoPath, endpoint); err != nil {
		ln.Close()
		return fmt.Errorf("rpc: publishing endpoint info: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[%s] rpc: listening on %s\n", stamp(), endpoint)
	close(s.readyCh)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdownCh:
		}
	}()

	s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				fmt.Fprintf(os.Stderr, "[%s] rpc: accept error: %v\n", stamp(), err)
				return
			}
		}

		select {
		case s.connSemaphore <- struct{}{}:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer func() { <-s.connSemaphore }()
				s.handleConnection(conn)
			}()
		default:
			fmt.Fprintf(os.Stderr, "[%s] rpc: rejecting connection, worker pool saturated (max=%d)\n", stamp(), s.cfg.Workers)
			conn.Close()
		}
	}
}

// handleConnection implements the per-connection protocol: the client writes
// exactly one request, optionally half-closes, then reads the single JSON
// response until the server closes the socket.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	deadline := time.Now().Add(s.cfg.RequestTimeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	reader := bufio.NewReaderSize(conn, 4096)
	raw, err := readRequestFrame(reader, s.cfg.MaxRequestBytes)
	if err != nil {
		s.writeTransportError(conn, err)
		return
	}

	var req Request
	if jsonErr := json.Unmarshal(raw, &req); jsonErr != nil {
		s.writeResponse(conn, &Response{Success: false, Error: "malformed JSON request", ErrorKind: string(modules.KindBadRequest)})
		return
	}

	if req.ClientVersion != "" && !compatibleVersion(req.ClientVersion, serverMajorVersion) {
		s.writeResponse(conn, errorResponse(req, string(modules.KindBadRequest),
			fmt.Sprintf("client_version %s is incompatible with server major version %s", req.ClientVersion, serverMajorVersion)))
		return
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	resultCh := make(chan *Response, 1)
	go func() {
		resultCh <- s.dispatcher.Dispatch(ctx, req)
	}()

	select {
	case resp := <-resultCh:
		s.writeResponse(conn, resp)
	case <-ctx.Done():
		s.writeResponse(conn, errorResponse(req, string(modules.KindTimeout), "request exceeded deadline"))
	}
}

// readRequestFrame reads up to maxBytes of a single newline-delimited or
// half-close-terminated JSON request: newline-termination is accepted but
// not required, since end-of-request is also signaled by half-close.
func readRequestFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	line, err := reader.ReadBytes('\n')
	if err == nil {
		if len(line) > maxBytes {
			return nil, fmt.Errorf("request frame exceeds %d bytes", maxBytes)
		}
		return line, nil
	}

	// No newline found before EOF (half-close) -- whatever was buffered is
	// the whole request, as long as it fits the size bound.
	if len(line) == 0 {
		return nil, err
	}
	if len(line) > maxBytes {
		return nil, fmt.Errorf("request frame exceeds %d bytes", maxBytes)
	}
	return line, nil
}

func (s *Server) writeTransportError(conn net.Conn, err error) {
	s.writeResponse(conn, &Response{Success: false, Error: err.Error(), ErrorKind: string(modules.KindBadRequest)})
}

func (s *Server) writeResponse(conn net.Conn, resp *Response) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] rpc: writing response: %v\n", stamp(), err)
	}
}

// Stop begins graceful shutdown: stop accepting new connections, drain
// in-flight workers up to the configured grace period, then remove endpoint
// files. Safe to call multiple times (only the first call acts).
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)

		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			ln.Close()
		}

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(s.cfg.ShutdownGrace):
			fmt.Fprintf(os.Stderr, "[%s] rpc: shutdown grace period elapsed with workers still active\n", stamp())
		}

		removeEndpointInfo(s.cfg.EndpointInfoPath)
		if s.cfg.SocketPath != "" {
			os.Remove(s.cfg.SocketPath)
		}
		fmt.Fprintf(os.Stderr, "[%s] rpc: shutdown complete\n", stamp())
	})
}

// compatibleVersion implements a semver-major-version gate, applied between
// an optional client_version envelope field and the daemon's own major
// version.
func compatibleVersion(clientVersion, serverMajor string) bool {
	canonical := clientVersion
	if canonical[0] != 'v' {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return true // unparsable version strings are not this gate's concern
	}
	return semver.Major(canonical) == "v"+serverMajor
}
