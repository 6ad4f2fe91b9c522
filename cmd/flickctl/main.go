package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"flickd/internal/ctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := ctl.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "flickctl:", err)
		stop()
		os.Exit(1)
	}
}
