package arcade

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

// formattedTool is a tool definition in OpenAI function format.
type formattedTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type formattedToolPage struct {
	Items      []formattedTool `json:"items"`
	TotalCount int             `json:"total_count"`
}

// QualifiedName converts a model-facing tool name such as
// "GoogleShopping_SearchProducts" into the service's
// "GoogleShopping.SearchProducts". Names that already contain a dot are
// returned unchanged.
func QualifiedName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return strings.Replace(name, "_", ".", 1)
}

// FormattedName is the inverse of QualifiedName.
func FormattedName(name string) string {
	return strings.Replace(name, ".", "_", 1)
}

// ListTools fetches every tool of the selected toolkits plus the individually
// selected tools. Each returned tool executes through the service for the
// client's user.
func (c *Client) ListTools(ctx context.Context, sel toolkit.Selection) ([]toolkit.Tool, error) {
	var tools []toolkit.Tool
	seen := make(map[string]struct{})

	add := func(ft formattedTool) {
		name := ft.Function.Name
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		tools = append(tools, c.tool(ft))
	}

	for _, kit := range sel.Toolkits {
		query := url.Values{}
		query.Set("toolkit", kit)
		query.Set("format", "openai")
		if sel.Limit > 0 {
			query.Set("limit", strconv.Itoa(sel.Limit))
		}

		var page formattedToolPage
		if err := c.do(ctx, http.MethodGet, "/v1/formatted_tools", query, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list tools of toolkit '%s': %w", kit, err)
		}
		c.logger.Debug("listed toolkit", zap.String("toolkit", kit), zap.Int("tools", len(page.Items)))

		for _, ft := range page.Items {
			add(ft)
		}
	}

	for _, name := range sel.Tools {
		query := url.Values{}
		query.Set("format", "openai")

		var ft formattedTool
		path := "/v1/formatted_tools/" + url.PathEscape(QualifiedName(name))
		if err := c.do(ctx, http.MethodGet, path, query, nil, &ft); err != nil {
			return nil, fmt.Errorf("failed to get tool '%s': %w", name, err)
		}
		add(ft)
	}

	return tools, nil
}

func (c *Client) tool(ft formattedTool) toolkit.Tool {
	name := ft.Function.Name
	qualified := QualifiedName(name)
	userID := c.userID

	return toolkit.Tool{
		Name:          name,
		Description:   ft.Function.Description,
		InputSchema:   ft.Function.Parameters,
		QualifiedName: qualified,
		Invoke: func(ctx context.Context, args map[string]any) (*toolkit.Result, error) {
			value, err := c.Execute(ctx, qualified, args, userID)
			if err != nil {
				return nil, err
			}
			return toolkit.NewResult(value), nil
		},
	}
}

// GrantFlow adapts the client's authorization endpoints to gate.GrantFlow.
type GrantFlow struct {
	Client *Client
}

var _ gate.GrantFlow = GrantFlow{}

func (f GrantFlow) Start(ctx context.Context, toolName, userID string) (*gate.Grant, error) {
	resp, err := f.Client.StartAuthorization(ctx, QualifiedName(toolName), userID)
	if err != nil {
		return nil, err
	}
	return toGrant(resp), nil
}

func (f GrantFlow) Wait(ctx context.Context, grantID string) (*gate.Grant, error) {
	resp, err := f.Client.WaitForCompletion(ctx, grantID)
	if err != nil {
		return nil, err
	}
	return toGrant(resp), nil
}

func toGrant(resp *AuthResponse) *gate.Grant {
	status := resp.Status
	switch status {
	case gate.GrantCompleted, gate.GrantFailed:
	default:
		status = gate.GrantPending
	}
	return &gate.Grant{ID: resp.ID, Status: status, URL: resp.URL}
}
