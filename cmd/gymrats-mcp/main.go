package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	gymmcp "github.com/claude/gymrats/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", os.Getenv("GYMRATS_URL"), "GymRats server URL (e.g. https://gymrats.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("GYMRATS_AUTH_API_KEY"), "API key, if the server requires one")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("gymrats-mcp", Version)
		return
	}

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: gymrats-mcp -server <URL> [-api-key KEY]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Stdout carries the protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("gymrats-mcp starting", "version", Version, "server", *serverURL)

	srv := gymmcp.New(gymmcp.NewHTTPClient(*serverURL, *apiKey), Version, log)
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Error("stdio server failed", "error", err)
		os.Exit(1)
	}
}
