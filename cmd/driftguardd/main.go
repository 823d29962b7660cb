package main

import (
	"context"
	"log"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/daemon"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := daemon.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
