package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/famish99/jackbridge/internal/bridge"
	"github.com/famish99/jackbridge/internal/config"
	"github.com/famish99/jackbridge/internal/control"
	"github.com/famish99/jackbridge/internal/host"
	"github.com/famish99/jackbridge/internal/logging"
	"github.com/famish99/jackbridge/internal/midiport"
	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/segment"
)

var (
	configPath  = flag.String("config", getDefaultConfigPath(), "Path to configuration file")
	instance    = flag.Int("instance", -1, "Run only this bridge instance (default: all configured)")
	driverMode  = flag.Bool("driver", false, "Run the driver side against a simulated device (otherwise run the JACK client side)")
	unlink      = flag.Bool("unlink", false, "Remove the shared memory object and exit")
	listPorts   = flag.Bool("list-ports", false, "List the ports each bridge registers and exit")
	initConfig  = flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	logLevel    = flag.String("log-level", "", "Override the configured log level")
	controlAddr = flag.String("control-addr", "", "Control server listen address (default from config, \"off\" disables)")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.SaveConfig(*configPath, config.DefaultConfig()); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger, err := logging.Setup(os.Stderr, cfg.Logging)
	if err != nil {
		log.Fatalf("Invalid logging config: %v", err)
	}

	if *unlink {
		if err := segment.Unlink(cfg.ShmOptions(0)); err != nil && !errors.Is(err, segment.ErrNotFound) {
			log.Fatalf("Failed to unlink shared memory: %v", err)
		}
		fmt.Printf("Removed %s\n", cfg.ShmOptions(0).Path())
		return
	}

	if *listPorts {
		printPorts(cfg)
		return
	}

	role := bridge.RoleClient
	hosts := host.Default(host.SimOptions{Paced: true})
	var opener midiport.Opener
	if *driverMode {
		role = bridge.RoleDriver
		hosts = host.SimFactory(host.SimOptions{Paced: true})
		opener = midiport.DefaultOpener()
	}

	svc := bridge.NewService(cfg, role, hosts, opener, logger)

	if *controlAddr != "" {
		cfg.Control.Addr = *controlAddr
	}
	var server *control.Server
	if cfg.Control.Addr != "" && cfg.Control.Addr != "off" {
		server = control.NewServer(cfg.Control.Addr, svc, logger)
		svc.SetNotifySubsystem(server.NotifySubsystemChange)
	}

	if err := svc.Start(context.Background(), *instance); err != nil {
		log.Fatalf("Failed to start bridge: %v", err)
	}
	if server != nil {
		if err := server.Start(); err != nil {
			svc.Stop()
			log.Fatalf("Failed to start control server: %v", err)
		}
	}

	slog.Info("Bridge running", "role", role.String(), "config", *configPath, "shm", cfg.ShmOptions(0).Path())

	// Wait for interrupt signal or a host failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exit := 0
	select {
	case <-sigChan:
		slog.Info("Shutting down")
	case err := <-svc.Errors():
		slog.Error("Bridge failed", "err", err)
		exit = 1
	}

	if server != nil {
		server.Stop()
	}
	if err := svc.Stop(); err != nil {
		slog.Error("Error stopping bridge", "err", err)
		exit = 1
	}
	os.Exit(exit)
}

func printPorts(cfg *config.Config) {
	for _, b := range cfg.Bridges {
		if *instance >= 0 && b.Instance != *instance {
			continue
		}
		plan := ports.NewPlan(b.Name, cfg.Layout())
		fmt.Printf("%d. %s (%s, sync_mode=%v)\n", b.Instance, b.Name, b.Variant, b.Sync())
		for _, p := range plan.All() {
			dir := "out"
			if p.Input {
				dir = "in"
			}
			if p.Kind == ports.Audio {
				fmt.Printf("   %-14s audio %-3s group %d channel %d\n", p.Name, dir, p.Group, p.Channel)
			} else {
				fmt.Printf("   %-14s midi  %-3s endpoint %q\n", p.Name, dir, plan.VirtualName(p.Index))
			}
		}
		fmt.Println()
	}
}

func getDefaultConfigPath() string {
	// Check common locations
	locations := []string{
		"./jackbridge.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "jackbridge", "config.yaml"),
		"/etc/jackbridge/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Default to first location if none exist
	return locations[0]
}
