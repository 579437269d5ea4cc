// Command testserver runs the target server used for manual load tests.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port     Port to listen on (default: 8080)
//	-host     Host to bind to (default: localhost)
//	-seed     Seed for the random endpoints (default: 1)
//	-verbose  Log every request
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"httpload/internal/logging"
	"httpload/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	seed := flag.Int64("seed", 1, "seed for random delays and failures")
	verbose := flag.Bool("verbose", false, "log every request")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, logging.Options{Level: level})

	server := testserver.NewServer(*seed, logger)
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("httpload test server")
	fmt.Println("====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	for _, e := range testserver.Endpoints {
		fmt.Printf("  %-22s - %s\n", e.Pattern, e.Description)
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down", "served", server.Requests())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
