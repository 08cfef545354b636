package main

import (
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HyphaGroup/crucible/internal/audit"
	"github.com/HyphaGroup/crucible/internal/config"
	"github.com/HyphaGroup/crucible/internal/engine"
	"github.com/HyphaGroup/crucible/internal/history"
	"github.com/HyphaGroup/crucible/internal/kernel"
	"github.com/HyphaGroup/crucible/internal/logger"
	"github.com/HyphaGroup/crucible/internal/maintenance"
	"github.com/HyphaGroup/crucible/internal/mcp"
	"github.com/HyphaGroup/crucible/internal/session"
	"github.com/HyphaGroup/crucible/internal/terminal"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			cmdInit()
			return
		case "--version", "-v":
			fmt.Printf("crucible %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	runServer()
}

func printUsage() {
	fmt.Printf(`Crucible %s - Stateful Code Execution MCP Server

Usage: crucible [command] [options]

Commands:
  (default)    Start the MCP server
  init         Initialize the Crucible directory structure

Server Options:
  --dir <path>   Crucible home directory

Config Precedence (for server):
  1. --dir flag
  2. CRUCIBLE_HOME env var
  3. ./.crucible (if initialized in current directory)
  4. ~/.crucible (default)

Examples:
  crucible                           Start the server (auto-detect config)
  crucible --dir /path/to/crucible   Start with specific config directory
  crucible init                      Set up ~/.crucible
  crucible init --dir .              Set up in current directory
`, Version)
}

func runServer() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Crucible home directory (default: ~/.crucible)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crucible %s\n", Version)
		os.Exit(0)
	}

	crucibleDir, err := config.ResolveHome(*dirFlag)
	if err != nil {
		log.Fatalf("Failed to resolve home directory: %v", err)
	}
	dataDir := filepath.Join(crucibleDir, "data")
	configDir := filepath.Join(crucibleDir, "config")

	if _, err := os.Stat(filepath.Join(configDir, "crucible.jsonc")); errors.Is(err, iofs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Crucible not initialized. Run 'crucible init' first.")
		os.Exit(1)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logDir := resolveDir(cfg.Audit.LogDir, dataDir)
	scriptsDir := resolveDir(cfg.Execution.ScriptsDir, dataDir)

	if err := logger.Init(logDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Println("Crucible - Stateful Code Execution MCP Server")
	logger.Println("")

	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		logger.Fatalf("Failed to create scripts directory: %v", err)
	}

	runtime := kernel.NewExecRuntime(
		cfg.Kernel.Command,
		cfg.Kernel.Args,
		time.Duration(cfg.Kernel.StartupTimeoutSeconds)*time.Second,
	)
	sessionMgr := session.NewManager(scriptsDir, runtime)
	auditLogger := audit.New(logDir)

	historyStore, err := history.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize history store: %v", err)
	}
	defer func() { _ = historyStore.Close() }()
	logger.Printf("History database: %s/history.db", dataDir)

	eng := engine.New(sessionMgr, auditLogger, historyStore,
		time.Duration(cfg.Execution.DefaultTimeoutSeconds)*time.Second)

	maintRunner := maintenance.New(maintenance.Config{
		History:    historyStore,
		ScriptsDir: scriptsDir,
		CronExpr:   cfg.Maintenance.Cron,
		Retention:  time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
	})
	if err := maintRunner.Start(); err != nil {
		logger.Fatalf("Failed to start maintenance: %v", err)
	}

	terminalMgr := terminal.NewManager(auditLogger, cfg.Terminal.StartDirectory)

	server := mcp.NewServer(eng, &mcp.ServerConfig{
		History:    historyStore,
		Terminal:   terminalMgr,
		ScriptsDir: scriptsDir,
		Version:    Version,
	})

	logger.Printf("Kernel command: %s", cfg.Kernel.Command)
	logger.Printf("Scripts directory: %s", scriptsDir)
	logger.Printf("Step log: %s", auditLogger.Path())
	logger.Println("")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(cfg.Server.Address)
	}()

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)

		logger.Println("   Closing sessions...")
		server.Close()

		logger.Println("   Stopping maintenance...")
		maintRunner.Stop()

		logger.Println("   Closing history database...")
		_ = historyStore.Close()

		logger.Println("Shutdown complete")
		_ = logger.Close()
		os.Exit(0) //nolint:gocritic // intentional exit after manual cleanup
	}
}

// resolveDir anchors relative config paths under the data directory.
func resolveDir(dir, dataDir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(dataDir, dir)
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory to initialize (default: ~/.crucible)")
	_ = fs.Parse(os.Args[2:])

	var crucibleDir string
	if *dirFlag != "" {
		absDir, err := filepath.Abs(*dirFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid directory: %v\n", err)
			os.Exit(1)
		}
		crucibleDir = absDir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		crucibleDir = filepath.Join(homeDir, ".crucible")
	}

	configDir := filepath.Join(crucibleDir, "config")
	dataDir := filepath.Join(crucibleDir, "data")

	configFile := filepath.Join(configDir, "crucible.jsonc")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("%s is already initialized.\n", crucibleDir)
		fmt.Print("Overwrite? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	fmt.Println("Initializing Crucible")
	fmt.Println("")

	dirs := []string{
		configDir,
		filepath.Join(dataDir, "scripts"),
		filepath.Join(dataDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("   Created %s\n", dir)
	}

	defaultConfig := `{
  // Crucible Configuration

  "server": {
    "address": ":8000"
  },

  "kernel": {
    // Worker command speaking the newline-delimited JSON protocol
    "command": "python3",
    "args": ["-u", "-m", "crucible_kernel"],
    "startup_timeout_seconds": 3
  },

  "execution": {
    "default_timeout_seconds": 10,
    "scripts_dir": "scripts"
  },

  "audit": {
    "log_dir": "logs"
  },

  "history": {
    "retention_days": 7
  },

  "maintenance": {
    "cron": "*/5 * * * *"
  },

  "terminal": {
    "start_directory": ""
  }
}
`
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating crucible.jsonc: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Created %s\n", configFile)

	fmt.Println("")
	fmt.Println("Crucible initialized!")
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Printf("   1. Adjust the kernel command in %s if needed\n", configFile)
	fmt.Println("   2. Run 'crucible' to start the server")
}
