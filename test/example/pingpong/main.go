package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// A crier integration running two facades ping-ponging enveloped messages
// over two topics, with reply routing via the envelope's replyTo meta field.
// Point it at an emulator by setting PUBSUB_EMULATOR_HOST, or at a real
// project via PUBSUB_PROJECT_ID and optionally PUBSUB_KEY_FILE.
// Run with go run .
// Graceful shutdown with Ctrl+C (or similar)
func main() {
	// Optional .env file; real env vars win.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	go ensureGracefulShutdown(cancel)
	RunPingPong(ctx)
}

func ensureGracefulShutdown(cancel context.CancelFunc) {

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	log.Println("Initiating wait for shutdown (SIGINT/SIGTERM) signal")

	<-shutdown

	log.Println("Received shutdown (SIGINT/SIGTERM) signal - initiating service cancellation.")
	cancel()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
