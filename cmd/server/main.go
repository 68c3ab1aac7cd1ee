// Command server runs the anchorsign signing API and its gRPC health
// endpoint. Settings come from defaults, an optional -c file and flags.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/irportal/anchorsign/internal/server"
	"github.com/irportal/anchorsign/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "anchorsign: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
