// Package mcp supplies tools from Model Context Protocol servers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

// ServerConfig represents the configuration for an MCP server
type ServerConfig struct {
	// For stdio transport (local process)
	Command string            // Command to execute (e.g., "npx")
	Args    []string          // Command arguments
	Env     map[string]string // Environment variables added to the process

	// For streamable HTTP transport (remote server)
	URL     string            // Server URL for remote connections
	Headers map[string]string // HTTP headers for authentication
}

// Server represents a connected MCP server
type Server struct {
	Name    string
	Config  ServerConfig
	Session *mcp.ClientSession
	Tools   map[string]*mcp.Tool
	mu      sync.RWMutex
}

// Manager manages the MCP servers tools are taken from
type Manager struct {
	servers map[string]*Server
	mu      sync.RWMutex
	version string
	logger  *zap.Logger
}

// NewManager creates a new MCP manager
func NewManager(version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		servers: make(map[string]*Server),
		version: version,
		logger:  logger,
	}
}

// RegisterServer connects to an MCP server and loads its tool list.
// ctx bounds the handshake and the listing, not the session.
func (m *Manager) RegisterServer(ctx context.Context, name string, config ServerConfig) error {
	if config.Command == "" && config.URL == "" {
		return fmt.Errorf("MCP server '%s' must specify either command or URL", name)
	}

	var transport mcp.Transport
	if config.Command != "" {
		cmd := exec.Command(config.Command, config.Args...)
		if len(config.Env) > 0 {
			env := os.Environ()
			for k, v := range config.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		transport = &mcp.CommandTransport{Command: cmd}
	} else {
		transport = &mcp.StreamableClientTransport{
			Endpoint: config.URL,
			HTTPClient: &http.Client{
				Transport: &headerTransport{base: http.DefaultTransport, headers: config.Headers},
			},
		}
	}

	return m.connect(ctx, name, config, transport)
}

func (m *Manager) connect(ctx context.Context, name string, config ServerConfig, transport mcp.Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.servers[name]; exists {
		return fmt.Errorf("MCP server '%s' already registered", name)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "toolgate",
		Version: m.version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server '%s': %w", name, err)
	}

	server := &Server{
		Name:    name,
		Config:  config,
		Session: session,
		Tools:   make(map[string]*mcp.Tool),
	}

	// Tool lists may be paginated
	params := &mcp.ListToolsParams{}
	for {
		page, err := session.ListTools(ctx, params)
		if err != nil {
			session.Close()
			return fmt.Errorf("failed to list tools of MCP server '%s': %w", name, err)
		}
		for _, tool := range page.Tools {
			server.Tools[tool.Name] = tool
		}
		if page.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: page.NextCursor}
	}

	m.logger.Info("connected to MCP server",
		zap.String("server", name),
		zap.Int("tools", len(server.Tools)),
	)

	m.servers[name] = server
	return nil
}

// GetServer returns a server by name
func (m *Manager) GetServer(name string) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	server, exists := m.servers[name]
	if !exists {
		return nil, fmt.Errorf("MCP server '%s' not found", name)
	}

	return server, nil
}

// GetTool returns a tool from a specific server
func (m *Manager) GetTool(serverName, toolName string) (*mcp.Tool, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	server.mu.RLock()
	defer server.mu.RUnlock()

	tool, exists := server.Tools[toolName]
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found in MCP server '%s'", toolName, serverName)
	}

	return tool, nil
}

// CallTool invokes an MCP tool
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	if _, err := m.GetTool(serverName, toolName); err != nil {
		return nil, err
	}

	if arguments == nil {
		arguments = map[string]any{}
	}

	result, err := server.Session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool '%s' on server '%s': %w", toolName, serverName, err)
	}

	return result, nil
}

// ListServers returns all registered server names, sorted
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := lo.Keys(m.servers)
	sort.Strings(names)
	return names
}

// ListTools returns the tools of every registered server, sorted by server
// and tool name. When sel.Tools is set only those tools are returned.
// Toolkits do not apply to MCP servers.
func (m *Manager) ListTools(ctx context.Context, sel toolkit.Selection) ([]toolkit.Tool, error) {
	var tools []toolkit.Tool

	for _, serverName := range m.ListServers() {
		server, err := m.GetServer(serverName)
		if err != nil {
			return nil, err
		}

		server.mu.RLock()
		names := lo.Keys(server.Tools)
		sort.Strings(names)
		for _, name := range names {
			if len(sel.Tools) > 0 && !lo.Contains(sel.Tools, name) {
				continue
			}
			schema, err := inputSchema(server.Tools[name])
			if err != nil {
				server.mu.RUnlock()
				return nil, fmt.Errorf("tool '%s' of MCP server '%s' has an unusable input schema: %w", name, serverName, err)
			}
			tools = append(tools, toolkit.Tool{
				Name:          name,
				Description:   server.Tools[name].Description,
				InputSchema:   schema,
				QualifiedName: serverName + "." + name,
				Invoke:        m.invoker(serverName, name),
			})
		}
		server.mu.RUnlock()
	}

	if sel.Limit > 0 && len(tools) > sel.Limit {
		tools = tools[:sel.Limit]
	}
	return tools, nil
}

func (m *Manager) invoker(serverName, toolName string) toolkit.Invoker {
	return func(ctx context.Context, args map[string]any) (*toolkit.Result, error) {
		result, err := m.CallTool(ctx, serverName, toolName, args)
		if err != nil {
			return nil, err
		}

		text := contentText(result)
		if result.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return nil, fmt.Errorf("tool '%s' failed: %s", toolName, text)
		}

		if result.StructuredContent != nil {
			return &toolkit.Result{Value: result.StructuredContent, Text: text}, nil
		}
		return toolkit.NewResult(text), nil
	}
}

func contentText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(tool *mcp.Tool) (map[string]any, error) {
	if tool.InputSchema == nil {
		return nil, nil
	}
	if schema, ok := tool.InputSchema.(map[string]any); ok {
		return schema, nil
	}

	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// Close shuts down all MCP servers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, server := range m.servers {
		if server.Session != nil {
			if err := server.Session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close server '%s': %w", name, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing MCP servers: %v", errs)
	}

	return nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
