package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

type searchInput struct {
	Keywords string `json:"keywords"`
}

type searchOutput struct {
	Products []string `json:"products"`
}

func newShoppingServer(opts *sdkmcp.ServerOptions) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "shopping",
		Version: "1.0.0",
	}, opts)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "search_products",
		Description: "Search for products",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, input searchInput) (*sdkmcp.CallToolResult, searchOutput, error) {
		return nil, searchOutput{Products: []string{input.Keywords + " deluxe"}}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "ping",
		Description: "Returns pong",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, input struct{}) (*sdkmcp.CallToolResult, struct {
		Message string `json:"message"`
	}, error) {
		return nil, struct {
			Message string `json:"message"`
		}{Message: "pong"}, nil
	})

	server.AddTool(&sdkmcp.Tool{
		Name:        "checkout",
		Description: "Always fails",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		return &sdkmcp.CallToolResult{
			IsError: true,
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "payment declined"}},
		}, nil
	})

	return server
}

func connectInMemory(t *testing.T, manager *Manager, name string, server *sdkmcp.Server) {
	t.Helper()
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	require.NoError(t, manager.connect(context.Background(), name, ServerConfig{}, clientTransport))
}

func TestRegisterServer_ValidationErrors(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	err := manager.RegisterServer(context.Background(), "test", ServerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must specify either command or URL")
}

func TestRegisterServer_Duplicate(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	connectInMemory(t, manager, "shop", newShoppingServer(nil))

	clientTransport, _ := sdkmcp.NewInMemoryTransports()
	err := manager.connect(context.Background(), "shop", ServerConfig{}, clientTransport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestGetServerAndTool(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	_, err := manager.GetServer("nonexistent")
	assert.ErrorContains(t, err, "not found")

	connectInMemory(t, manager, "shop", newShoppingServer(nil))

	server, err := manager.GetServer("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", server.Name)

	tool, err := manager.GetTool("shop", "search_products")
	require.NoError(t, err)
	assert.Equal(t, "Search for products", tool.Description)

	_, err = manager.GetTool("shop", "missing")
	assert.ErrorContains(t, err, "not found in MCP server 'shop'")

	assert.Equal(t, []string{"shop"}, manager.ListServers())
}

func TestListTools_Paginated(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	connectInMemory(t, manager, "shop", newShoppingServer(&sdkmcp.ServerOptions{PageSize: 1}))

	tools, err := manager.ListTools(context.Background(), toolkit.Selection{})
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"checkout", "ping", "search_products"}, names)
	assert.Equal(t, "shop.search_products", tools[2].QualifiedName)
	assert.Equal(t, "object", tools[2].InputSchema["type"])
}

func TestListTools_Selection(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	connectInMemory(t, manager, "shop", newShoppingServer(nil))

	tools, err := manager.ListTools(context.Background(), toolkit.Selection{Tools: []string{"ping", "search_products"}})
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	tools, err = manager.ListTools(context.Background(), toolkit.Selection{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, tools, 1)
}

func TestToolInvoke(t *testing.T) {
	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	connectInMemory(t, manager, "shop", newShoppingServer(nil))

	tools, err := manager.ListTools(context.Background(), toolkit.Selection{})
	require.NoError(t, err)
	set := toolkit.NewSet(tools, zaptest.NewLogger(t))

	search, ok := set.Get("search_products")
	require.True(t, ok)
	res, err := search.Invoke(context.Background(), map[string]any{"keywords": "mouse"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"products":["mouse deluxe"]}`, res.Text)
	assert.NotNil(t, res.Value)

	checkout, ok := set.Get("checkout")
	require.True(t, ok)
	_, err = checkout.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment declined")
}

func TestHTTPServer_WithHeaders(t *testing.T) {
	var authorized atomic.Bool
	handler := sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		if r.Header.Get("Authorization") == "Bearer test-token" {
			authorized.Store(true)
		}
		return newShoppingServer(nil)
	}, &sdkmcp.StreamableHTTPOptions{})

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	err := manager.RegisterServer(context.Background(), "remote", ServerConfig{
		URL:     testServer.URL,
		Headers: map[string]string{"Authorization": "Bearer test-token"},
	})
	require.NoError(t, err)

	result, err := manager.CallTool(context.Background(), "remote", "ping", nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.True(t, authorized.Load())
}

func TestRegisterServer_StopsWhenContextEnds(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer testServer.Close()

	manager := NewManager("test", zaptest.NewLogger(t))
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := manager.RegisterServer(ctx, "stuck", ServerConfig{URL: testServer.URL})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, manager.ListServers())
}
