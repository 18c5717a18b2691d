package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/tools/common"
)

// ProfileURI is the URI of the current user's profile.
const ProfileURI = "user://profile"

// RegisterUserResources registers resources describing the current user.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Broker() == nil {
		return fmt.Errorf("session broker is not configured")
	}

	profileResource := mcp.NewResource(
		ProfileURI,
		"Current User Profile",
		mcp.WithResourceDescription("Profile of the signed-in Google account"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUserProfile(ctx, request, sc)
	})

	return nil
}

// handleUserProfile returns the stored profile of the current user. Tokens
// are never part of it.
func handleUserProfile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userID := common.ResolveUser(ctx, sc, nil)
	if userID == "" {
		return nil, fmt.Errorf("no signed-in user")
	}

	profile, err := sc.Broker().Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	jsonData, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
