package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RecruitChain/cmd/recruitctl/commands"
)

// main 是 recruitctl 的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
