// ABOUTME: Entry point for vpn-admin, the registry administration CLI
// ABOUTME: Delegates to the cobra command tree and maps errors to exit codes

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/vpn-gateway/internal/admincli"
	"github.com/2389/vpn-gateway/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := admincli.NewRootCommand(config.DefaultPath())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(admincli.GetExitCode(err))
	}
}
