// Copyright (c) 2023 BVK Chaitanya

// Package httputil implements an http server with handlers that can be added
// and removed while it is serving.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bvk/spotbot/ctxutil"
	"github.com/google/uuid"
)

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	mux atomic.Pointer[http.ServeMux]

	mutex        sync.Mutex
	handlerMap   map[string]http.Handler
	serverMap    map[int64]*http.Server
	nextServerID int64
}

// New creates a http server.
func New(opts *Options) (*Server, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	s := &Server{
		opts:       *opts,
		handlerMap: make(map[string]http.Handler),
		serverMap:  make(map[int64]*http.Server),
	}
	s.mux.Store(http.NewServeMux())
	return s, nil
}

func (s *Server) Close() error {
	s.mutex.Lock()
	for id, svr := range s.serverMap {
		svr.Close()
		delete(s.serverMap, id)
	}
	s.mutex.Unlock()

	s.cg.Close()
	return nil
}

// StartTCP starts serving on the address and waits till the server responds
// to requests. Port number of the address is updated when it is zero.
func (s *Server) StartTCP(ctx context.Context, addr *net.TCPAddr) (id int64, status error) {
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return -1, err
	}
	defer func() {
		if status != nil {
			l.Close()
		}
	}()

	if addr.Port == 0 {
		laddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return -1, fmt.Errorf("created listener addr is not *net.TCPAddr type")
		}
		addr.Port = laddr.Port
	}

	server := &http.Server{
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return s.cg.Context()
		},
	}
	defer func() {
		if status != nil {
			server.Close()
		}
	}()

	s.cg.Go(func(ctx context.Context) {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "addr", addr, "err", err)
		}
	})

	if err := s.waitReady(ctx, l.Addr().String()); err != nil {
		return -1, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	id = s.nextServerID
	s.nextServerID++
	s.serverMap[id] = server
	return id, nil
}

// waitReady polls a temporary handler till the server responds.
func (s *Server) waitReady(ctx context.Context, host string) error {
	testPath := "/" + uuid.New().String()
	s.AddHandler(testPath, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer s.RemoveHandler(testPath)

	c := http.Client{
		Timeout: s.opts.ServerCheckTimeout,
	}
	u := url.URL{
		Scheme: "http",
		Host:   host,
		Path:   testPath,
	}

	tctx, tcancel := context.WithTimeout(ctx, s.opts.ServerCheckTimeout)
	defer tcancel()

	for tctx.Err() == nil {
		r, err := http.NewRequestWithContext(tctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := c.Do(r)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		ctxutil.Sleep(tctx, s.opts.ServerCheckRetryInterval)
	}
	return fmt.Errorf("could not invoke test handler: %w", context.Cause(tctx))
}

func (s *Server) Stop(id int64) error {
	s.mutex.Lock()
	svr, ok := s.serverMap[id]
	delete(s.serverMap, id)
	s.mutex.Unlock()

	if !ok {
		return fmt.Errorf("http server %d not found: %w", id, os.ErrNotExist)
	}
	return svr.Close()
}

func (s *Server) AddHandler(pattern string, handler http.Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.handlerMap[pattern] = handler
	s.updateHandlerMux()
}

// RemoveHandler returns false if no handler was registered for the pattern.
func (s *Server) RemoveHandler(pattern string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.handlerMap[pattern]; !ok {
		return false
	}
	delete(s.handlerMap, pattern)
	s.updateHandlerMux()
	return true
}

func (s *Server) updateHandlerMux() {
	m := http.NewServeMux()
	for k, v := range s.handlerMap {
		m.Handle(k, v)
	}
	s.mux.Store(m)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}
