// Package introspect serves the state of a running tree over HTTP: a health
// probe, a textual dump of the tree and Prometheus metrics.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/dataflow/internal/ctxlog"
	"github.com/vk/dataflow/internal/optree"
)

const shutdownTimeout = 5 * time.Second

// Server exposes one tree.
type Server struct {
	tree     *optree.Tree
	registry *prometheus.Registry
	http     *http.Server
	ctx      context.Context
}

// NewServer creates a server for tree. ctx carries the logger of the
// handlers.
func NewServer(ctx context.Context, tree *optree.Tree) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newTreeCollector(tree))
	return &Server{tree: tree, registry: reg, ctx: ctx}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/tree", s.treeHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(s.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// treeHandler prints the tree layout followed by the details of every node.
func (s *Server) treeHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(s.ctx)
	logger.Debug("Tree endpoint hit.", "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "state: %s\n\n", s.tree.State())
	if err := s.tree.Print(w, nil); err != nil {
		logger.Warn("Writing tree failed.", "error", err)
		return
	}
	for n := range s.tree.PreOrder() {
		fmt.Fprintln(w)
		if err := n.Print(w, true); err != nil {
			logger.Warn("Writing node failed.", "node", n.NameWithID(), "error", err)
			return
		}
	}
}

// Start listens on port and serves in the background. It returns the bound
// address, which differs from the requested one when port is 0.
func (s *Server) Start(port int) (string, error) {
	logger := ctxlog.FromContext(s.ctx)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", fmt.Errorf("introspection server: %w", err)
	}
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: shutdownTimeout}

	addr := ln.Addr().String()
	logger.Info("🔎 Introspection server starting", "address", "http://"+addr)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Introspection server failed unexpectedly", "error", err)
		}
	}()
	return addr, nil
}

// Close shuts the server down gracefully. Closing a server that was never
// started is a no-op.
func (s *Server) Close() error {
	logger := ctxlog.FromContext(s.ctx)
	if s.http == nil {
		logger.Debug("Introspection server was not running.")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), shutdownTimeout)
	defer cancel()

	logger.Info("🔎 Shutting down introspection server...")
	if err := s.http.Shutdown(ctx); err != nil {
		logger.Error("Introspection server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Introspection server shut down gracefully.")
	return nil
}
