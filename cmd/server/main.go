package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"restbase/internal/config"
	"restbase/internal/server"
	"restbase/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// A connect failure is reported, not fatal: the store carries the fault
	// and every endpoint answers with it until the database comes back.
	db := store.New(ctx, cfg.Database)
	defer db.Close()
	if fault := db.Fault(); fault != nil {
		log.Printf("WARN: database unavailable: %s", fault.Message)
	} else {
		log.Println("Database connected")
	}

	app, err := server.New(cfg, db)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	if err := app.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
