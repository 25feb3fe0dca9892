package main

import (
	"fmt"
	"os"

	"github.com/rmhgeo/jobengine/internal/app"
	"github.com/rmhgeo/jobengine/internal/platform/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	port := envutil.Str("PORT", "8080")
	a.Log.Info("Submission Gateway listening", "port", port)
	if err := a.Run(":" + port); err != nil {
		a.Log.Warn("server stopped", "error", err)
	}
}
