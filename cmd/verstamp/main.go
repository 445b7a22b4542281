package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Oudwins/verstamp/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.Run(ctx, os.Args[1:])
	stop()
	if err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
