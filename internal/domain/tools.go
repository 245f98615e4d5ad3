package domain

import "strings"

// ToolName is the wire name of a tool the remote agent can invoke.
type ToolName string

const (
	ToolUpdateRecord     ToolName = "confirm_details"
	ToolPostChatMessage  ToolName = "post_to_chat"
	ToolShowPhoto        ToolName = "show_company_photo"
	ToolSendConfirmation ToolName = "send_confirmation_email"
	ToolEndCall          ToolName = "end_call"
)

// ToolInvocation is a named side-effect request from either channel.
type ToolInvocation struct {
	ID   string
	Name ToolName
	Args map[string]any
}

// ToolResult acknowledges one invocation back to the remote agent.
type ToolResult struct {
	ID       string
	Name     ToolName
	Response map[string]any
}

// SuccessResult is the acknowledgment sent for every dispatched invocation.
func SuccessResult(call ToolInvocation) ToolResult {
	return ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{"result": "success"}}
}

// StringArg returns a trimmed string argument or "".
func (c ToolInvocation) StringArg(key string) string {
	raw, ok := c.Args[key]
	if !ok || raw == nil {
		return ""
	}
	return strings.TrimSpace(stringify(raw))
}
