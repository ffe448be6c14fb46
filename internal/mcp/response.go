package mcp

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createResponseWithWarnings adds a "warnings" field naming unknown arguments
func createResponseWithWarnings(data map[string]interface{}, unknown []UnknownField) (*mcp.CallToolResult, error) {
	if len(unknown) > 0 {
		slices.SortFunc(unknown, func(a, b UnknownField) int { return strings.Compare(a.Name, b.Name) })
		warnings := make([]string, len(unknown))
		for i, f := range unknown {
			warnings[i] = fmt.Sprintf("unknown parameter %q ignored", f.Name)
		}
		data["warnings"] = warnings
	}
	return createJSONResponse(data)
}

// createErrorResponse creates a standardized error response for MCP tools.
// Tool errors are reported inside the result with IsError set so the
// client can see them and correct the call.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	return createSmartErrorResponse(operation, err, nil)
}

// createSmartErrorResponse is createErrorResponse with extra fields merged in
func createSmartErrorResponse(operation string, err error, extra map[string]interface{}) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if help := getOperationHelp(operation); help != "" {
		errorData["help"] = help
	}
	for k, v := range extra {
		errorData[k] = v
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

func getOperationHelp(operation string) string {
	switch operation {
	case "relationships":
		return `Use: {"subject": "Name or kind:unit#Name", "kind": "is-invoked-by"}. Omit kind to list every kind.`
	case "attribute":
		return `Use: {"subject": "Name or kind:unit#Name", "attribute": "signature"}`
	case "suggest":
		return `Use: {"name": "Partial name", "max": 10}`
	case "statistics":
		return `Use: {} or {"detail": true, "top": 10}`
	}
	return ""
}
