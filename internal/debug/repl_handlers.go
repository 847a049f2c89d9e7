package debug

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// findTool finds a tool by name in the cache
func (r *REPL) findTool(toolName string) *mcp.Tool {
	r.client.mu.RLock()
	defer r.client.mu.RUnlock()

	for _, t := range r.client.toolCache {
		if t.Name == toolName {
			return &t
		}
	}
	return nil
}

// parseToolArgs parses JSON arguments for a tool call
func parseToolArgs(argsStr string, toolName string) (map[string]interface{}, error) {
	if argsStr == "" {
		return nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		fmt.Println("Error: Arguments must be valid JSON")
		fmt.Printf("Example: call %s {\"project\": \"Contoso\", \"id\": 42}\n", toolName)
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

// displayToolResultContent displays a single content item from a tool result
func displayToolResultContent(content mcp.Content) {
	if textContent, ok := mcp.AsTextContent(content); ok {
		displayTextContent(textContent.Text)
	} else if imageContent, ok := mcp.AsImageContent(content); ok {
		fmt.Printf("[Image: MIME type %s, %d bytes]\n", imageContent.MIMEType, len(imageContent.Data))
	} else if audioContent, ok := mcp.AsAudioContent(content); ok {
		fmt.Printf("[Audio: MIME type %s, %d bytes]\n", audioContent.MIMEType, len(audioContent.Data))
	}
}

// displayTextContent displays text content, pretty-printing JSON if possible
func displayTextContent(text string) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(text), &jsonData); err == nil {
		fmt.Println(logger.PrettyJSON(jsonData))
	} else {
		fmt.Println(text)
	}
}

// displayToolResult displays the result of a tool call
func displayToolResult(result *mcp.CallToolResult) {
	if result.IsError {
		fmt.Println("Tool returned an error:")
		for _, content := range result.Content {
			if textContent, ok := mcp.AsTextContent(content); ok {
				fmt.Printf("  %s\n", textContent.Text)
			}
		}
		return
	}

	fmt.Println("Result:")
	for _, content := range result.Content {
		displayToolResultContent(content)
	}
}

// handleCallTool executes a tool with the given arguments
func (r *REPL) handleCallTool(ctx context.Context, toolName string, argsStr string) error {
	if !r.client.ServerSupportsTools() {
		return fmt.Errorf("server does not support tools capability")
	}

	if tool := r.findTool(toolName); tool == nil {
		return fmt.Errorf("tool not found: %s", toolName)
	}

	args, err := parseToolArgs(argsStr, toolName)
	if err != nil {
		return err
	}

	fmt.Printf("Executing tool: %s...\n", toolName)
	result, err := r.client.CallTool(ctx, toolName, args)
	if err != nil {
		return fmt.Errorf("tool execution failed: %w", err)
	}

	displayToolResult(result)
	return nil
}
