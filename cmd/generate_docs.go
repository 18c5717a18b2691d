package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/assistant"
	"github.com/teemow/lifeassist/internal/calendar"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/resources"
	"github.com/teemow/lifeassist/internal/server"
	"github.com/teemow/lifeassist/internal/tools/assistant_tools"
	"github.com/teemow/lifeassist/internal/tools/calendar_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for the MCP tools and resources.
The documentation is built from the registered tool definitions, so it always
matches what the server exposes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := buildToolsMarkdown()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docTools lists the tools a server registers. The services behind them
// are never called.
func docTools(readOnly bool) ([]mcp.Tool, error) {
	cal := calendar.NewService(google.StaticTokenProvider{}, calendar.ClientConfig{}, nil)
	sc := server.NewServerContext(context.Background(), server.Services{
		Calendar:  cal,
		Assistant: assistant.NewService(cal, nil, nil),
	})
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("lifeassist", version, mcpserver.WithToolCapabilities(true))
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register Calendar tools: %w", err)
	}
	if err := assistant_tools.RegisterAssistantTools(mcpSrv, sc); err != nil {
		return nil, fmt.Errorf("failed to register Assistant tools: %w", err)
	}

	tools := make([]mcp.Tool, 0, len(mcpSrv.ListTools()))
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	return tools, nil
}

func buildToolsMarkdown() (string, error) {
	all, err := docTools(false)
	if err != nil {
		return "", err
	}
	readOnly, err := docTools(true)
	if err != nil {
		return "", err
	}

	readable := make(map[string]bool, len(readOnly))
	for _, t := range readOnly {
		readable[t.Name] = true
	}
	var writeTools []string
	for _, t := range all {
		if !readable[t.Name] {
			writeTools = append(writeTools, t.Name)
		}
	}

	return generateToolsMarkdown(all, writeTools), nil
}

func generateToolsMarkdown(tools []mcp.Tool, writeTools []string) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools and resources available when running `lifeassist serve`.\n\n")
	sb.WriteString("**Note:** This documentation is generated with `lifeassist generate-docs`.\n\n")

	toolsByCategory := groupToolsByCategory(tools)
	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	sb.WriteString("- [Choosing the User](#choosing-the-user)\n")
	for _, category := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}
	sb.WriteString("- [Resources](#resources)\n\n")

	sb.WriteString("## Choosing the User\n\n")
	sb.WriteString("Tools that read or change a calendar act for exactly one user:\n\n")
	sb.WriteString("- **HTTP transport:** the user signed in through the session cookie; the `user` argument is ignored\n")
	sb.WriteString("- **stdio transport:** the `user` argument, or the user given with `serve --user`\n\n")
	if len(writeTools) > 0 {
		sort.Strings(writeTools)
		sb.WriteString("With `--read-only` these tools are not registered: ")
		for i, name := range writeTools {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "`%s`", name)
		}
		sb.WriteString(".\n\n")
	}
	sb.WriteString("`assistant_chat` is only registered when an Anthropic API key is configured.\n\n")

	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Resources\n\n")
	fmt.Fprintf(&sb, "### %s\n\n", resources.ProfileURI)
	sb.WriteString("Profile of the user the request acts for: id, email, name and picture. Tokens are never included.\n")

	return sb.String()
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		categories[category] = append(categories[category], tool)
	}
	return categories
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "calendar":
		return "Google Calendar Tools"
	case "assistant":
		return "Assistant Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]interface{})
		if !ok {
			continue
		}

		requiredStr := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			requiredStr = "required"
		}

		desc, _ := prop["description"].(string)
		if desc == "" {
			desc = getPropertyType(prop) + " parameter"
		}
		fmt.Fprintf(&sb, "- `%s` (%s): %s\n", name, requiredStr, desc)
	}
	sb.WriteString("\n")

	return sb.String()
}

func getPropertyType(prop map[string]interface{}) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
