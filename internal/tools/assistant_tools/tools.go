package assistant_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/instrumentation"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/session"
	"github.com/teemow/lifeassist/internal/tools/common"
)

// RegisterAssistantTools registers the assistant tools. assistant_chat is
// only available when a model is configured.
func RegisterAssistantTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	classifyTool := mcp.NewTool("assistant_classify",
		mcp.WithDescription("Tell whether a message is about the user's calendar and which keywords matched"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The message to classify"),
		),
	)

	s.AddTool(classifyTool, common.InstrumentedToolHandler("assistant_classify", sc, handleClassify))

	if sc.Assistant() == nil {
		return nil
	}

	chatTool := mcp.NewTool("assistant_chat",
		mcp.WithDescription("Ask the assistant a question. Questions about the calendar are answered with the user's upcoming events."),
		mcp.WithString(common.UserArg,
			mcp.Description("User id to act for (stdio only; ignored when signed in over HTTP)"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The question to ask"),
		),
	)

	s.AddTool(chatTool, common.InstrumentedToolHandlerWithService(
		"assistant_chat", instrumentation.ServiceAnthropic, instrumentation.OperationComplete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleChat(ctx, request, sc)
		}))

	return nil
}

func handleClassify(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, _ := request.GetArguments()["text"].(string)
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	isCalendar, keywords := assistant.IsCalendarQuery(text)
	if !isCalendar {
		return mcp.NewToolResultText("Calendar query: no"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Calendar query: yes\nKeywords: %s", strings.Join(keywords, ", "))), nil
}

func handleChat(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	userID := common.ResolveUser(ctx, sc, args)
	if userID == "" {
		return mcp.NewToolResultError("no user: sign in over HTTP, pass the user argument, or start the server with --user"), nil
	}

	reply, err := sc.Assistant().Chat(ctx, userID, []assistant.Message{{Role: assistant.RoleUser, Content: message}})
	switch {
	case errors.Is(err, assistant.ErrNoUserMessage):
		return mcp.NewToolResultError("message is required"), nil
	case session.IsAuthError(err):
		return mcp.NewToolResultError("The Google session has ended. Sign in again at /api/auth/google."), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("Assistant failed: %v", err)), nil
	}

	result := reply.Message.Content
	if reply.CalendarQuery {
		result += fmt.Sprintf("\n\n(answered with %d calendar events)", reply.EventCount)
	}
	return mcp.NewToolResultText(result), nil
}
