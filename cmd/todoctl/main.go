package main

import (
	"context"
	"fmt"
	"os"

	"github.com/PLUTO-NIX/slack-to-obsidian/cmd/todoctl/commands"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/bootstrap"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/config"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
	"go.uber.org/zap"
)

func main() {
	var zapLogger *zap.Logger
	openStore := func(ctx context.Context) (*bootstrap.Store, error) {
		cfg, err := config.Load(config.RoleCLI)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		zapLogger, err = logger.NewDevelopmentLogger(false)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		return bootstrap.OpenStore(ctx, cfg, zapLogger)
	}

	err := commands.NewRootCmd(openStore).ExecuteContext(context.Background())
	_ = logger.Sync(zapLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
