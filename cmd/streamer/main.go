package main

import (
	"log"
	"os"

	"kvsstreamer/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		log.Printf("Failed to start streamer: %v", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.Printf("Streamer stopped: %v", err)
		os.Exit(1)
	}
}
