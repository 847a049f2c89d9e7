package debug

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// errExit is a sentinel error used to signal REPL exit
var errExit = errors.New("exit")

// REPL is the interactive shell for exploring a bridge's tool surface.
type REPL struct {
	client          *Client
	logger          *logger.Logger
	rl              *readline.Instance
	stopChan        chan struct{}
	wg              sync.WaitGroup
	commandHandlers map[string]commandHandler
}

// NewREPL creates a new REPL instance
func NewREPL(client *Client, log *logger.Logger) *REPL {
	r := &REPL{
		client:   client,
		logger:   log,
		stopChan: make(chan struct{}),
	}
	r.commandHandlers = r.buildCommandHandlers()
	return r
}

// Run starts the REPL
func (r *REPL) Run(ctx context.Context) error {
	// Set up readline with tab completion
	completer := r.createCompleter()
	historyFile := filepath.Join(os.TempDir(), ".mcp_azure_devops_history")

	config := &readline.Config{
		Prompt:          "ado> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.rl = rl

	// Start notification listener in background
	r.wg.Add(1)
	go r.notificationListener(ctx)

	r.logger.Info("Bridge REPL started. Type 'help' for available commands. Use TAB for completion.")
	fmt.Println()

	for {
		// Check if context is cancelled
		select {
		case <-ctx.Done():
			close(r.stopChan)
			r.wg.Wait()
			r.logger.Info("REPL shutting down...")
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			close(r.stopChan)
			r.wg.Wait()
			r.logger.Info("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				close(r.stopChan)
				r.wg.Wait()
				r.logger.Info("Goodbye!")
				return nil
			}
			r.logger.Error("Error: %v", err)
		}

		fmt.Println()
	}
}

// toolNames returns the cached tool names for tab completion
func (r *REPL) toolNames() []string {
	r.client.mu.RLock()
	defer r.client.mu.RUnlock()

	names := make([]string, len(r.client.toolCache))
	for i, tool := range r.client.toolCache {
		names[i] = tool.Name
	}
	return names
}

// buildPcItems converts a slice of strings to readline completer items
func buildPcItems(names []string) []readline.PrefixCompleterInterface {
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name)
	}
	return items
}

// createCompleter creates the tab completion configuration
func (r *REPL) createCompleter() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("notifications",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
		readline.PcItem("list", readline.PcItem("tools")),
	}

	if r.client.ServerSupportsTools() {
		toolCompleter := buildPcItems(r.toolNames())
		items = append(items,
			readline.PcItem("describe", toolCompleter...),
			readline.PcItem("call", toolCompleter...),
		)
	}

	return readline.NewPrefixCompleter(items...)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// notificationListener handles notifications in the background
func (r *REPL) notificationListener(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case notification := <-r.client.notificationChan:
			// Temporarily pause readline
			if r.rl != nil {
				_, _ = r.rl.Stdout().Write([]byte("\r\033[K"))
			}

			if err := r.client.handleNotification(ctx, notification); err != nil {
				r.logger.Error("Failed to handle notification: %v", err)
			}

			// Update completer if the tool list changed
			if notification.Method == notificationToolsListChanged && r.rl != nil {
				r.rl.Config.AutoComplete = r.createCompleter()
			}

			// Refresh readline prompt
			if r.rl != nil {
				r.rl.Refresh()
			}
		}
	}
}

// commandHandler defines a REPL command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

// buildCommandHandlers creates the map of command handlers
func (r *REPL) buildCommandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"?": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"exit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"quit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"list": {
			minArgs: 2,
			usage:   "usage: list tools",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleList(ctx, parts[1])
			},
		},
		"describe": {
			minArgs: 2,
			usage:   "usage: describe <tool-name>",
			handler: func(ctx context.Context, parts []string) error {
				return r.describeTool(ctx, parts[1])
			},
		},
		"notifications": {
			minArgs: 2,
			usage:   "usage: notifications <on|off>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleNotifications(parts[1])
			},
		},
		"call": {
			minArgs: 2,
			usage:   "usage: call <tool-name> [args...]",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleCallTool(ctx, parts[1], strings.Join(parts[2:], " "))
			},
		},
	}
}

// executeCommand parses and executes a command
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])

	handler, exists := r.commandHandlers[command]
	if !exists {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}

	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}

	return handler.handler(ctx, parts)
}

// showHelp displays available commands
func (r *REPL) showHelp() error {
	fmt.Println("Available commands:")
	fmt.Println("  help, ?                      - Show this help message")
	fmt.Println("  list tools                   - List all tools the bridge exposes")
	fmt.Println("  describe <tool>              - Show a tool's description and input schema")
	fmt.Println("  call <tool> {json}           - Execute a tool with JSON arguments")
	fmt.Println("  notifications <on|off>       - Enable/disable notification display")
	fmt.Println("  exit, quit                   - Exit the REPL")
	fmt.Println()
	fmt.Println("Keyboard shortcuts:")
	fmt.Println("  TAB                          - Auto-complete commands and tool names")
	fmt.Println("  ↑/↓ (arrow keys)             - Navigate command history")
	fmt.Println("  Ctrl+R                       - Search command history")
	fmt.Println("  Ctrl+C                       - Cancel current line")
	fmt.Println("  Ctrl+D                       - Exit REPL")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  call core_list_projects {}")
	fmt.Println("  call wit_get_work_item {\"id\": 42, \"project\": \"Contoso\"}")
	fmt.Println("  describe repo_list_pull_requests_by_repo")
	return nil
}

// handleList handles list commands
func (r *REPL) handleList(ctx context.Context, target string) error {
	switch strings.ToLower(target) {
	case "tools", "tool":
		if !r.client.ServerSupportsTools() {
			fmt.Println("Server does not support tools capability.")
			return nil
		}
		return r.listTools(ctx)
	default:
		return fmt.Errorf("unknown list target: %s. Only 'tools' is available", target)
	}
}

// listTools displays available tools
func (r *REPL) listTools(ctx context.Context) error {
	r.client.mu.RLock()
	tools := r.client.toolCache
	r.client.mu.RUnlock()

	if len(tools) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	fmt.Printf("Available tools (%d):\n", len(tools))
	for i, tool := range tools {
		fmt.Printf("  %d. %-40s - %s\n", i+1, tool.Name, tool.Description)
	}
	return nil
}

// describeTool shows detailed information about a tool
func (r *REPL) describeTool(ctx context.Context, name string) error {
	if !r.client.ServerSupportsTools() {
		return fmt.Errorf("server does not support tools capability")
	}

	tool := r.findTool(name)
	if tool == nil {
		return fmt.Errorf("tool not found: %s", name)
	}

	fmt.Printf("Tool: %s\n", tool.Name)
	fmt.Printf("Description: %s\n", tool.Description)
	fmt.Println("Input Schema:")
	fmt.Printf("%s\n", logger.PrettyJSON(tool.InputSchema))
	return nil
}

// handleNotifications enables or disables notification display
func (r *REPL) handleNotifications(setting string) error {
	switch strings.ToLower(setting) {
	case "on":
		r.logger.SetVerbose(true)
		fmt.Println("Notifications enabled")
	case "off":
		r.logger.SetVerbose(false)
		fmt.Println("Notifications disabled")
	default:
		return fmt.Errorf("invalid setting: %s. Use 'on' or 'off'", setting)
	}
	return nil
}
