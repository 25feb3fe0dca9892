package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmhgeo/jobengine/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("starting worker pool (orchestrator, executor, janitor)")
	a.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	a.Log.Info("shutting down worker pool")
}
