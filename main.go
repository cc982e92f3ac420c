package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/voiceforge/cmd"
	"github.com/tphakala/voiceforge/internal/buildinfo"
	"github.com/tphakala/voiceforge/internal/conf"
)

// Set by -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.NewContext(version, buildDate))
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
