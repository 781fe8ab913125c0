package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/config"
	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/mcp"
	"github.com/clawd-mcp/clawd-mcp/internal/tools"
)

type inputSchema struct {
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func main() {
	cfg, err := config.LoadFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := tools.New(cfg, tools.WithLogger(logger))
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defs, err := mcp.NewServer(svc, core.NewPolicy(""), logger, "docgen").ListTools(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stdout, "# MCP Tools (Generated)")
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "This file is generated by `cmd/mcpdocgen`.")
	fmt.Fprintln(os.Stdout)

	for _, d := range defs {
		fmt.Fprintf(os.Stdout, "- `%s`\n", d.Name)
		if d.Description != "" {
			fmt.Fprintf(os.Stdout, "  - Description: %s\n", d.Description)
		}

		var schema inputSchema
		if raw, err := json.Marshal(d.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &schema)
		}
		requiredSet := make(map[string]bool, len(schema.Required))
		for _, r := range schema.Required {
			requiredSet[r] = true
		}

		keys := make([]string, 0, len(schema.Properties))
		for k := range schema.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if len(keys) > 0 {
			fmt.Fprintln(os.Stdout, "  - Input:")
			for _, k := range keys {
				req := "optional"
				if requiredSet[k] {
					req = "required"
				}
				line := fmt.Sprintf("    - `%s` (%s)", k, req)
				if desc := schema.Properties[k].Description; desc != "" {
					line += ": " + desc
				}
				fmt.Fprintln(os.Stdout, line)
			}
		}
		fmt.Fprintln(os.Stdout)
	}
}
