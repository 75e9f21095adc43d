package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/germanamz/babycode/pkg/codingtoolbox/filesystem"
	"github.com/germanamz/babycode/pkg/tools/mcpserver"
)

// runMCP exposes the file tools over MCP on stdin/stdout until the client
// disconnects or the process is interrupted.
func runMCP(root string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fs := filesystem.New(root, nil)
	srv := mcpserver.New("babycode", version, fs.Tools())

	return srv.ServeStdio(ctx)
}
