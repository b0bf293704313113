package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tlsnotary/notaryd/internal/config"
	"github.com/tlsnotary/notaryd/internal/store"
	notarytls "github.com/tlsnotary/notaryd/internal/tls"
	"github.com/tlsnotary/notaryd/internal/tlsengine"
	"github.com/tlsnotary/notaryd/internal/verifier"
	"github.com/tlsnotary/notaryd/internal/ws"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		handleTokenCommand(os.Args[2:])
		return
	}

	configPath := flag.String("config", "", "Path to config file")
	listenAddr := flag.String("listen", "", "API listen address (overrides config)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	showHelp := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *showHelp {
		printHelp()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("notaryd %s (%s)\n", version, commit)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debugMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		printError("Failed to load configuration", err, configLoadFix(*configPath))
	}

	if *listenAddr != "" {
		cfg.Listen.Listen = *listenAddr
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		printError("Failed to determine config directory", err, configLoadFix(""))
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		printError("Failed to create config directory", err, certPermissionFix(configDir))
	}

	certsDir := filepath.Join(configDir, "certs")
	host, _, err := net.SplitHostPort(cfg.Listen.ListenAddr())
	if err != nil {
		host = "localhost"
	}
	serverCert, err := notarytls.LoadOrCreateServerCert(certsDir, host)
	if err != nil {
		if isPermissionError(err) {
			printError("Failed to load/create server certificate", err, certPermissionFix(certsDir))
		} else if isCorruptCert(err) {
			printError("Server certificate is corrupted", err, certCorruptFix(certsDir))
		} else {
			printError("Failed to load/create server certificate", err, certCorruptFix(certsDir))
		}
	}
	slog.Info("server certificate loaded", "dir", certsDir, "host", host)

	const maxPortAttempts = 10
	listener, actualAddr, err := listenWithFallback(cfg.Listen.ListenAddr(), maxPortAttempts)
	if err != nil {
		printError("Failed to bind API server", err, portInUseFix(cfg.Listen.ListenAddr(), maxPortAttempts))
	}
	tlsListener := tlsListenerWrap(listener, serverCert)
	slog.Info("notary API bound", "addr", actualAddr)

	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath, &cfg.Retention)
	if err != nil {
		if isDBLocked(err) {
			printError("Database is locked", err, dbLockedFix(cfg.Store.DBPath))
		} else if isPermissionError(err) {
			printError("Cannot access database", err, dbPathFix(cfg.Store.DBPath))
		} else {
			printError("Failed to open database", err, dbPathFix(cfg.Store.DBPath))
		}
	}
	defer dataStore.Close()
	slog.Info("database opened", "path", cfg.Store.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	wsHub := ws.NewHub(cfg, logger, 1024)
	go wsHub.Run(ctx)

	prover := tlsengine.NewNotImplementedProver()
	proofVerifier := tlsengine.NewNotImplementedVerifier()

	apiServer := verifier.NewServer(cfg, dataStore, wsHub, prover, proofVerifier, logger)

	httpServer := &http.Server{
		Handler: apiServer.Handler(),
	}

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		runRetention(dataStore, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runRetention(dataStore, logger)
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  notaryd:   https://%s\n", actualAddr)
	fmt.Fprintf(os.Stderr, "  WebSocket: wss://%s/ws\n", actualAddr)
	fmt.Fprintf(os.Stderr, "  DB:        %s\n", cfg.Store.DBPath)
	fmt.Fprintf(os.Stderr, "  Token:     %s\n", cfg.Auth.Token)
	fmt.Fprintf(os.Stderr, "\n")

	go func() {
		slog.Info("notary API starting", "addr", actualAddr)
		if err := httpServer.Serve(tlsListener); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down notary API")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown error", "error", err)
	}

	slog.Info("notaryd shutdown complete")
}

// runRetention deletes expired session data.
func runRetention(dataStore store.Store, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := dataStore.RunRetention(ctx)
	if err != nil {
		logger.Error("retention cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("retention cleanup completed", "deleted", deleted)
	}
}

// listenWithFallback attempts to listen on the given address, falling back
// to subsequent ports if the port is already in use.
func listenWithFallback(baseAddr string, maxAttempts int) (net.Listener, string, error) {
	host, portStr, err := net.SplitHostPort(baseAddr)
	if err != nil {
		ln, err := net.Listen("tcp", baseAddr)
		if err != nil {
			return nil, "", err
		}
		return ln, baseAddr, nil
	}

	basePort, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		port := basePort + i
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				slog.Info("port fallback", "requested", baseAddr, "actual", addr)
			}
			return ln, addr, nil
		}

		if isAddrInUse(err) {
			lastErr = err
			continue
		}
		return nil, "", err
	}

	return nil, "", fmt.Errorf("all %d ports starting from %s are in use: %w", maxAttempts, baseAddr, lastErr)
}

// tlsListenerWrap wraps a plain TCP listener with the notary's own listener
// certificate, for the local HTTPS API.
func tlsListenerWrap(ln net.Listener, cert *tls.Certificate) net.Listener {
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
	return tls.NewListener(ln, tlsCfg)
}

// generateToken generates a cryptographically random bearer token for the
// notary API, in the same shape config.Load uses on first run.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "notaryd_" + hex.EncodeToString(b), nil
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use") ||
		strings.Contains(errStr, "Only one usage of each socket address") ||
		strings.Contains(errStr, "EADDRINUSE")
}

func printHelp() {
	fmt.Printf(`notaryd - TLS notarization verifier service

notaryd runs the verifier side of a TLS notarization session: it accepts
a prover's MPC-TLS transcript, applies the requested selective disclosure,
and checks the resulting proof and commitment bindings.

USAGE:
    notaryd [OPTIONS]
    notaryd token <command> [options]

COMMANDS:
    token show        Show the current auth token
    token rotate      Generate a new auth token

OPTIONS:
    -config <path>    Path to configuration file
    -listen <addr>    API listen address (default: from config or localhost:8443)
    -version          Show version information
    -help             Show this help message

EXAMPLES:
    notaryd                       Start with default config
    notaryd -listen :8500         Start on port 8500
    notaryd -config ./my.yaml     Use custom config file
    notaryd token show            Show current auth token
    notaryd token rotate          Generate and save a new auth token

CONFIGURATION:
    Config file locations (in order of precedence):
    - Path specified with -config
    - %%APPDATA%%\notaryd\config.yaml (Windows)
    - ~/.config/notaryd/config.yaml (Unix)

    Environment variables can override config:
    - NOTARYD_LISTEN      API listen address
    - NOTARYD_AUTH_TOKEN  API authentication token
    - NOTARYD_DB_PATH     Database path
`)
}

func handleTokenCommand(args []string) {
	tokenFlags := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := tokenFlags.String("config", "", "Path to config file")

	if len(args) == 0 {
		printTokenHelp()
		os.Exit(1)
	}

	subcommand := args[0]
	_ = tokenFlags.Parse(args[1:])

	switch subcommand {
	case "show":
		tokenShow(*configPath)
	case "rotate":
		tokenRotate(*configPath)
	case "help", "-help", "--help":
		printTokenHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown token command: %s\n", subcommand)
		printTokenHelp()
		os.Exit(1)
	}
}

func tokenShow(configPath string) {
	cfg, cfgPath, err := loadConfigForToken(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config:  %s\n", cfgPath)
	fmt.Printf("Token:   %s\n", cfg.Auth.Token)
}

func tokenRotate(configPath string) {
	cfg, cfgPath, err := loadConfigForToken(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	oldToken := cfg.Auth.Token
	newToken, err := generateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}
	cfg.Auth.Token = newToken

	if err := cfg.Save(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Config:     %s\n", cfgPath)
	fmt.Printf("Old token:  %s\n", oldToken)
	fmt.Printf("New token:  %s\n", newToken)
	fmt.Println()
	fmt.Println("Note: Restart notaryd for the new token to take effect.")
}

func loadConfigForToken(configPath string) (*config.Config, string, error) {
	var cfgPath string
	var err error
	if configPath != "" {
		cfgPath = configPath
	} else {
		cfgPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, "", fmt.Errorf("getting default config path: %w", err)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

func printTokenHelp() {
	fmt.Printf(`Usage: notaryd token <command> [options]

Commands:
    show        Show the current auth token
    rotate      Generate a new auth token and save to config

Options:
    -config <path>    Path to configuration file

Examples:
    notaryd token show
    notaryd token rotate
`)
}
