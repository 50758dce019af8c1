// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// IPv4Server is a loopback HTTP server that shuts itself down when the test ends.
type IPv4Server struct {
	URL       string
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewIPv4Server starts handler on 127.0.0.1. Tests are skipped on hosts
// without a tcp4 loopback.
func NewIPv4Server(t *testing.T, handler http.Handler) *IPv4Server {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	transport := &http.Transport{}
	s := &IPv4Server{
		URL:       "http://" + l.Addr().String(),
		server:    &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("IPv4Server serve error: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns an HTTP client bound to the server's transport.
func (s *IPv4Server) Client() *http.Client {
	return s.client
}

// URLFor joins path onto the server's base URL.
func (s *IPv4Server) URLFor(path string) string {
	return s.URL + "/" + strings.TrimPrefix(path, "/")
}

// Close shuts down the server. It is safe to call more than once.
func (s *IPv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
	s.transport.CloseIdleConnections()
}
