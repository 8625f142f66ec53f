package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RewardPilot/cmd/rewardpilot/commands"
)

// main 是 rewardpilot 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rewardpilot: %v\n", err)
		stop()
		os.Exit(1)
	}
}
