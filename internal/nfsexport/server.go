package nfsexport

import (
	"net"

	"github.com/rs/zerolog/log"
	nfs "github.com/willscott/go-nfs"
	"github.com/willscott/go-nfs/helpers"

	"github.com/filebay/filebay/internal/vault"
)

// cachingHandles bounds the NFS handle cache. Handles past the limit are
// evicted and clients re-resolve them.
const cachingHandles = 1024

// Server exposes the vault over NFS v3, read-only, with null auth. The
// export is meant for trusted networks; session auth lives in the web
// layer, not here.
type Server struct {
	addr     string
	listener net.Listener
}

// NewServer creates an NFS server for the store.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// Start begins serving. It returns once the listener is bound; serving
// continues in the background until Stop.
func (s *Server) Start(store *vault.Store) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	fs := New(store)
	handler := helpers.NewCachingHandler(helpers.NewNullAuthHandler(fs), cachingHandles)

	log.Info().Str("addr", s.addr).Msg("NFS export started")
	go func() {
		if err := nfs.Serve(listener, handler); err != nil {
			log.Error().Err(err).Msg("NFS export stopped serving")
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Addr returns the bound listener address, useful when the configured
// address had port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
