package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/charliek/sidecar/internal/trampoline"
)

func main() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	os.Exit(trampoline.Run(trampoline.Options{
		Args:    os.Args[1:],
		Signals: signals,
	}))
}
