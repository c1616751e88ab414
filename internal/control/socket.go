// Package control provides a Unix socket server for CLI-to-daemon
// communication: daemon status and on-demand retention sweeps.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/sweep"
	"github.com/filebay/filebay/internal/vault"
)

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	return "/var/run/filebay.sock"
}

// Request types for control commands.
const (
	CmdStatus   = "status"
	CmdSweepNow = "sweep.now"
)

// Timeouts for control socket operations.
const (
	// SocketDialTimeout is the timeout for connecting to the control socket.
	SocketDialTimeout = 5 * time.Second
	// SocketReadWriteTimeout is the timeout for reading/writing on the socket.
	SocketReadWriteTimeout = 30 * time.Second
)

// Request is a control command from the CLI.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is a response to a control command.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NamespaceStatus describes one namespace in a status response.
type NamespaceStatus struct {
	Name         string `json:"name"`
	Root         string `json:"root"`
	TrashEntries int    `json:"trash_entries"`
}

// StatusResponse is the response for the status command.
type StatusResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Namespaces    []NamespaceStatus `json:"namespaces"`
}

// SweepResponse is the response for the sweep.now command.
type SweepResponse struct {
	Removed map[string]int `json:"removed"` // items removed per sweep kind
}

// Server is a Unix socket control server.
type Server struct {
	socketPath string
	store      *vault.Store
	sweeper    *sweep.Sweeper
	version    string
	startedAt  time.Time
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer creates a control server over the store and sweeper.
func NewServer(socketPath string, store *vault.Store, sweeper *sweep.Sweeper, version string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		store:      store,
		sweeper:    sweeper,
		version:    version,
		startedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on the control socket.
func (s *Server) Start() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Remove stale socket
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	// The socket can trigger sweeps; keep it owner-only.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = listener
	log.Info().Str("path", s.socketPath).Msg("control socket listening")

	go s.acceptLoop()
	return nil
}

// Stop closes the control server.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Error().Err(err).Msg("control socket accept error")
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(SocketReadWriteTimeout))

	decoder := json.NewDecoder(conn)
	var req Request
	if err := decoder.Decode(&req); err != nil {
		s.sendError(conn, fmt.Errorf("decode request: %w", err))
		return
	}

	resp := s.handleCommand(req)

	encoder := json.NewEncoder(conn)
	_ = encoder.Encode(resp)
}

func (s *Server) handleCommand(req Request) Response {
	switch req.Command {
	case CmdStatus:
		return s.handleStatus()
	case CmdSweepNow:
		return s.handleSweepNow()
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (s *Server) handleStatus() Response {
	status := StatusResponse{
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	for _, ns := range vault.Namespaces {
		entries, err := s.store.ListTrash(ns)
		if err != nil {
			log.Warn().Err(err).Str("namespace", ns.String()).Msg("failed to count trash entries for status")
		}
		status.Namespaces = append(status.Namespaces, NamespaceStatus{
			Name:         ns.String(),
			Root:         s.store.Root(ns),
			TrashEntries: len(entries),
		})
	}

	data, _ := json.Marshal(status)
	return Response{Success: true, Data: data}
}

func (s *Server) handleSweepNow() Response {
	if s.sweeper == nil {
		return Response{Success: false, Error: "sweeper not running"}
	}

	removed := s.sweeper.RunNow()
	log.Info().
		Int("trash", removed["trash"]).
		Int("content", removed["content"]).
		Int("staging", removed["staging"]).
		Msg("manual sweep via control socket")

	data, _ := json.Marshal(SweepResponse{Removed: removed})
	return Response{Success: true, Data: data}
}

func (s *Server) sendError(conn net.Conn, err error) {
	resp := Response{Success: false, Error: err.Error()}
	_ = json.NewEncoder(conn).Encode(resp)
}

// Client is a control socket client for CLI commands.
type Client struct {
	socketPath string
}

// NewClient creates a new control client.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Send sends a request and returns the response.
func (c *Client) Send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, SocketDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to control socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(SocketReadWriteTimeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Send(Request{Command: CmdStatus})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}

	var result StatusResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// SweepNow runs all retention passes immediately.
func (c *Client) SweepNow() (*SweepResponse, error) {
	resp, err := c.Send(Request{Command: CmdSweepNow})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}

	var result SweepResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}
