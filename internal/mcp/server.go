// Package mcp exposes whiteworms simulations and stored runs over the
// Model Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aaleta/C72h-whiteworms/internal/config"
	"github.com/aaleta/C72h-whiteworms/internal/network"
	"github.com/aaleta/C72h-whiteworms/internal/observability"
	"github.com/aaleta/C72h-whiteworms/internal/pathutil"
	"github.com/aaleta/C72h-whiteworms/internal/ratelimit"
	"github.com/aaleta/C72h-whiteworms/internal/sanitize"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

// Server wraps the MCP SDK server with the simulation tools.
type Server struct {
	server       *sdk.Server
	store        store.ResultStore
	settings     *config.WhitewormsConfig
	log          *slog.Logger
	collector    *observability.Collector
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	sandbox      *pathutil.Sandbox

	mu       sync.Mutex
	networks map[networkKey]*network.Network
}

type networkKey struct {
	path     string
	directed bool
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "whiteworms")
	Version string // Server version

	// Root is an extra directory clients may load networks from, in
	// addition to ~/.whiteworms.
	Root string

	// Settings supplies default rates, seeding and budgets. Nil uses config.Default().
	Settings *config.WhitewormsConfig

	// Store persists runs. Nil keeps them in memory for the session.
	Store store.ResultStore

	Logger    *slog.Logger
	Collector *observability.Collector

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string
}

// NewServer creates a new MCP server with the whiteworms tools registered.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	resultStore := cfg.Store
	if resultStore == nil {
		resultStore = store.NewInMemoryResultStore()
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	sandbox, err := pathutil.DataSandbox(cfg.Root)
	if err != nil {
		return nil, err
	}

	var auditLogger *AuditLogger
	if cfg.AuditDir != "" {
		auditLogger = NewAuditLogger(cfg.AuditDir, log)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        resultStore,
		settings:     settings,
		log:          log,
		collector:    cfg.Collector,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  auditLogger,
		sandbox:      sandbox,
		networks:     make(map[networkKey]*network.Network),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.log.Info("mcp server listening on stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	err := s.store.Close()
	if auditErr := s.auditLogger.Close(); auditErr != nil && err == nil {
		err = auditErr
	}
	return err
}

// loadNetwork parses the edge list at path, reusing earlier loads of the
// same file. Client-supplied paths must lie inside the allowed directories;
// an empty path selects the configured network.
func (s *Server) loadNetwork(path string, directed bool) (*network.Network, error) {
	name, nodes := "", 0
	if path == "" {
		path = s.settings.Network.Path
		name, nodes = s.settings.Network.Name, s.settings.Network.Nodes
		directed = directed || s.settings.Network.Directed
		if path == "" {
			return nil, fmt.Errorf("network is required (no default network configured)")
		}
	} else {
		resolved, err := s.sandbox.Resolve(path)
		if err != nil {
			return nil, fmt.Errorf("network path rejected: %w", err)
		}
		path = resolved
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving network path: %w", err)
	}
	if name == "" {
		base := filepath.Base(abs)
		name = base[:len(base)-len(filepath.Ext(base))]
	}

	key := networkKey{path: abs, directed: directed}
	s.mu.Lock()
	defer s.mu.Unlock()
	if net, ok := s.networks[key]; ok {
		return net, nil
	}

	net, err := network.LoadFile(abs, network.LoadOptions{
		Name:     sanitize.NetworkName(name),
		Directed: directed,
		Nodes:    nodes,
	})
	if err != nil {
		return nil, fmt.Errorf("loading network %s: %w", pathutil.Redact(abs), err)
	}
	s.networks[key] = net
	s.log.Debug("network loaded", "network", net.Name(), "nodes", net.NodeCount(), "edges", net.EdgeCount())
	return net, nil
}
