package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/atinylittleshell/toolgate/internal/agent"
	"github.com/atinylittleshell/toolgate/internal/config"
	"github.com/atinylittleshell/toolgate/internal/core"
	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/history"
	"github.com/atinylittleshell/toolgate/internal/llm"
	"github.com/atinylittleshell/toolgate/internal/repl"
	"github.com/atinylittleshell/toolgate/internal/repl/input"
	"github.com/atinylittleshell/toolgate/internal/repl/render"
	"github.com/atinylittleshell/toolgate/internal/styles"
	"github.com/atinylittleshell/toolgate/internal/toolkit"
	"github.com/atinylittleshell/toolgate/internal/toolkit/arcade"
	"github.com/atinylittleshell/toolgate/internal/toolkit/mcp"
)

var BUILD_VERSION = "dev"

// mcpServerName prefixes the qualified names of MCP tools.
const mcpServerName = "mcp"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.LookupEnv, os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run starts one chat session. Configuration is loaded and validated before
// anything else is created; a configuration problem is returned as a
// *config.Error. Interrupting the session is not an error.
func run(ctx context.Context, lookup config.LookupFunc, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(lookup)
	if err != nil {
		fmt.Fprintln(stderr, styles.ERROR("toolgate: "+err.Error()))
		return err
	}

	paths, err := core.NewPaths(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(stderr, styles.ERROR("toolgate: failed to create data directory: "+err.Error()))
		return err
	}

	logger, err := initializeLogger(cfg, paths)
	if err != nil {
		fmt.Fprintln(stderr, styles.ERROR("toolgate: failed to initialize logger: "+err.Error()))
		return err
	}
	defer logger.Sync() // Flush any buffered log entries

	logger.Info("-------- new toolgate session --------",
		zap.String("version", BUILD_VERSION),
		zap.String("user", cfg.UserID),
		zap.String("provider", cfg.ToolProvider),
		zap.String("model", cfg.Model),
	)

	err = runSession(ctx, cfg, paths, logger, stdin, stdout)
	if err != nil && ctx.Err() == nil {
		logger.Error("unhandled error", zap.Error(err))
		fmt.Fprintln(stderr, styles.ERROR("toolgate: "+err.Error()))
		return err
	}

	logger.Info("session ended")
	return nil
}

func runSession(ctx context.Context, cfg *config.Config, paths *core.Paths, logger *zap.Logger, stdin io.Reader, stdout io.Writer) error {
	termWidth := terminalWidth(stdout)
	renderer := render.New(stdout, termWidth)
	renderer.SetAnimate(isTerminal(stdout))
	reader := input.NewReader(stdin)

	tools, flow, closeTools, err := initializeTools(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTools()

	toolSet := toolkit.NewSet(tools, logger)
	policy := gate.NewPolicy(cfg.ConfirmTools)
	authorizer := gate.NewAuthorizer(flow, renderer.RenderSystemMessage, logger)

	toolGate := gate.New(gate.Options{
		Prompter:   repl.NewTerminalPrompter(renderer, reader),
		Authorizer: authorizer,
		UserID:     cfg.UserID,
		Policy:     policy,
		Timeout:    cfg.ConfirmTimeout,
		Logger:     logger,
	})

	chatAgent := agent.New(agent.Options{
		Name: "toolgate",
		Provider: llm.NewOpenAIProvider(llm.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		}, logger),
		Model:         cfg.Model,
		SystemPrompt:  cfg.SystemPrompt,
		Tools:         toolSet,
		Guarded:       toolGate.GuardAll(toolSet.Tools()),
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	})

	transcript := initializeTranscript(cfg, paths, logger)
	if transcript != nil {
		defer transcript.Close()
	}

	var preauthorize []string
	if cfg.AuthorizeOnStartup {
		preauthorize = toolSet.Names()
	}

	confirmed := 0
	for _, name := range toolSet.Names() {
		if policy.Requires(name) {
			confirmed++
		}
	}

	session, err := repl.NewREPL(repl.Options{
		Agent:        chatAgent,
		Renderer:     renderer,
		Reader:       reader,
		Transcript:   transcript,
		UserID:       cfg.UserID,
		Authorizer:   authorizer,
		Preauthorize: preauthorize,
		Welcome: &render.WelcomeInfo{
			Model:      cfg.Model,
			Provider:   cfg.ToolProvider,
			UserID:     cfg.UserID,
			Tools:      toolSet.Len(),
			ConfirmAll: cfg.ConfirmsAll(),
			Confirmed:  confirmed,
			Version:    BUILD_VERSION,
		},
		TermWidth: termWidth,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	return session.Run(ctx)
}

// initializeTools fetches the configured tools and the grant flow that
// authorizes them. The returned func releases provider resources.
func initializeTools(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]toolkit.Tool, gate.GrantFlow, func(), error) {
	provider, flow, closeProvider, err := initializeProvider(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	tools, err := provider.ListTools(ctx, toolkit.Selection{
		Toolkits: cfg.Toolkits,
		Tools:    cfg.Tools,
		Limit:    cfg.ToolLimit,
	})
	if err != nil {
		closeProvider()
		return nil, nil, nil, fmt.Errorf("failed to list %s tools: %w", cfg.ToolProvider, err)
	}
	return tools, flow, closeProvider, nil
}

func initializeProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (toolkit.Provider, gate.GrantFlow, func(), error) {
	switch cfg.ToolProvider {
	case config.ProviderMCP:
		manager := mcp.NewManager(BUILD_VERSION, logger)
		closeManager := func() {
			if err := manager.Close(); err != nil {
				logger.Warn("failed to close MCP servers", zap.Error(err))
			}
		}

		err := manager.RegisterServer(ctx, mcpServerName, mcp.ServerConfig{
			Command: cfg.MCP.Command,
			Args:    cfg.MCP.Args,
			Env:     cfg.MCP.Env,
			URL:     cfg.MCP.URL,
			Headers: cfg.MCP.Headers,
		})
		if err != nil {
			closeManager()
			return nil, nil, nil, err
		}
		return manager, gate.NoGrant{}, closeManager, nil

	default:
		client := arcade.NewClient(arcade.Options{
			APIKey:  cfg.ArcadeAPIKey,
			BaseURL: cfg.ArcadeBaseURL,
			UserID:  cfg.UserID,
			Version: BUILD_VERSION,
			Logger:  logger,
		})
		return client, arcade.GrantFlow{Client: client}, func() {}, nil
	}
}

func initializeLogger(cfg *config.Config, paths *core.Paths) (*zap.Logger, error) {
	logLevel := cfg.Level()
	if BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		paths.LogFile,
	}

	// Logs only go to file to keep the terminal for the conversation
	return loggerConfig.Build()
}

func initializeTranscript(cfg *config.Config, paths *core.Paths, logger *zap.Logger) *history.HistoryManager {
	if !cfg.Transcript {
		return nil
	}
	transcript, err := history.NewHistoryManager(paths.TranscriptFile)
	if err != nil {
		logger.Warn("transcript disabled", zap.Error(err))
		return nil
	}
	return transcript
}

func terminalWidth(w io.Writer) func() int {
	f, ok := w.(*os.File)
	if !ok {
		return nil
	}
	return func() int {
		width, _, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return 0
		}
		return width
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
