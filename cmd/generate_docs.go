package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/sharedcal/internal/config"
	"github.com/teemow/sharedcal/internal/server"
	"github.com/teemow/sharedcal/internal/tools/calendar_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command introspects the registered tools and outputs their documentation
in markdown format, so the reference always matches the tool definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(ctx context.Context, outputFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Registration only needs a wired context, not a real credential.
	dir, err := os.MkdirTemp("", "sharedcal-docs-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	serverContext, err := server.NewServerContext(ctx, docsConfig(dir), server.Options{})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = serverContext.Shutdown() }()

	mcpSrv := newMCPServer()
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}

	markdown := generateToolsMarkdown(tools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
		return nil
	}
	fmt.Print(markdown)
	return nil
}

func docsConfig(dir string) config.Config {
	return config.Config{
		Calendar: config.CalendarConfig{
			BaseURL:        "https://www.googleapis.com/calendar/v3",
			DefaultID:      "primary",
			RequestTimeout: 30 * time.Second,
		},
		Storage: config.StorageConfig{
			Type:            config.StorageTypeFile,
			Dir:             dir,
			TokenFile:       filepath.Join(dir, "tokens.json"),
			IdempotencyFile: filepath.Join(dir, "idempotency.json"),
			StateFile:       filepath.Join(dir, "state.json"),
			LockTimeout:     time.Second,
		},
		Idempotency: config.IdempotencyConfig{TTL: 24 * time.Hour},
	}
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists every tool available when running sharedcal as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	toolsByCategory := groupToolsByCategory(tools)

	sb.WriteString("## Table of Contents\n\n")
	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", category, anchor))
	}
	sb.WriteString("\n")

	sb.WriteString("## Idempotency\n\n")
	sb.WriteString("`create_event`, `update_event` and `delete_event` require an `idempotency_key`:\n\n")
	sb.WriteString("- Repeating a call with the same key and the same arguments returns the stored result with `idempotent_replay: true`\n")
	sb.WriteString("- The replay key covers the arguments, so changed arguments are sent to Google again\n")
	sb.WriteString("- Events created under a key get a deterministic ID, so a retried create never duplicates the event\n\n")

	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		sb.WriteString(fmt.Sprintf("## %s\n\n", category))

		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

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
	switch {
	case strings.HasSuffix(name, "_event"), strings.HasSuffix(name, "_events"):
		return "Event Tools"
	case name == "find_availability":
		return "Scheduling Tools"
	case name == "token_status":
		return "Diagnostics"
	default:
		return "Other"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	if len(tool.InputSchema.Properties) == 0 {
		sb.WriteString("This tool takes no arguments.\n")
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")

	propNames := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)

	for _, name := range propNames {
		propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}

		requiredStr := "optional"
		if contains(tool.InputSchema.Required, name) {
			requiredStr = "required"
		}

		sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): ", name, getPropertyType(propMap), requiredStr))
		if desc, ok := propMap["description"].(string); ok {
			sb.WriteString(desc)
		}
		if constraints := propertyConstraints(propMap); constraints != "" {
			sb.WriteString(" [" + constraints + "]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// propertyConstraints renders the schema limits of a property, e.g.
// "one of: all, externalOnly, none" or "min 5, max 240".
func propertyConstraints(prop map[string]any) string {
	var parts []string
	if values, ok := prop["enum"].([]string); ok && len(values) > 0 {
		parts = append(parts, "one of: "+strings.Join(values, ", "))
	}
	if min, ok := prop["minimum"].(float64); ok {
		parts = append(parts, fmt.Sprintf("min %g", min))
	}
	if max, ok := prop["maximum"].(float64); ok {
		parts = append(parts, fmt.Sprintf("max %g", max))
	}
	if maxLen, ok := prop["maxLength"].(int); ok {
		parts = append(parts, fmt.Sprintf("max %d characters", maxLen))
	}
	return strings.Join(parts, ", ")
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
