package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kvasirlabs/handlink/internal/ble"
	"github.com/kvasirlabs/handlink/internal/config"
	"github.com/kvasirlabs/handlink/internal/gateway"
	"github.com/kvasirlabs/handlink/internal/transfer"
)

const tickPeriod = 250 * time.Millisecond

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/handlink/config.yaml)")
	voiceDir := flag.String("voice-dir", "", "directory for received voice files (default: <tmp>/handlink)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	printBanner(cfg)

	// BLE session over the system adapter
	session := ble.NewSession(ble.NewTinyGoAdapter())
	if err := session.Begin(); err != nil {
		log.Fatalf("Failed to enable the BLE adapter: %v", err)
	}
	session.Configure(cfg.BLE)
	log.Println("BLE session ready")

	// Gateway client over websocket
	gw := gateway.NewClient(gateway.NewWSTransport())
	gw.Begin()
	gw.Configure(cfg.Gateway)

	started := time.Now()
	gw.SetTelemetryBuilder(func(payload map[string]any) {
		payload["uptimeSec"] = int64(time.Since(started).Seconds())
		payload["bleConnected"] = session.IsConnected()
		payload["inboxCount"] = gw.InboxCount()
	})

	sink := newVoiceSink(gw, resolveVoiceDir(*voiceDir))
	gw.SetChunkHandler(sink.handleChunk)

	gw.SetInvokeHandler(func(invokeID, nodeID, command string, params map[string]any) {
		switch command {
		case "keyboard.read":
			text := session.KeyboardInputText()
			if !gw.SendInvokeOK(invokeID, nodeID, map[string]any{"text": text}) {
				log.Printf("ERROR: invoke %s result send failed", invokeID)
			}
		case "keyboard.clear":
			session.ClearKeyboardInput()
			gw.SendInvokeOK(invokeID, nodeID, nil)
		case "msg.send":
			err := transfer.SendText(gw, "node-host",
				stringField(params, "to"), stringField(params, "text"))
			if err != nil {
				gw.SendInvokeError(invokeID, nodeID, "send_failed", err.Error())
				return
			}
			gw.SendInvokeOK(invokeID, nodeID, nil)
		default:
			gw.SendInvokeError(invokeID, nodeID, "unsupported", fmt.Sprintf("unknown command %q", command))
		}
	})

	// Auto-connect saved peers
	if cfg.BLE.AutoConnect && cfg.BLE.DeviceAddress != "" {
		if err := session.ConnectToDevice(cfg.BLE.DeviceAddress, cfg.BLE.DeviceName); err != nil {
			log.Printf("BLE auto-connect failed: %v", err)
		}
	}
	if cfg.Gateway.URL != "" {
		gw.ConnectNow()
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Ready. Ctrl+C to quit.")

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	var wasReady, wasLinked bool
	var lastInput string
	for {
		select {
		case <-ticker.C:
			gw.Tick()
			session.Tick()

			if ready := gw.IsReady(); ready != wasReady {
				wasReady = ready
				if ready {
					log.Println("Gateway session established")
				} else if msg := gw.LastError(); msg != "" {
					log.Printf("Gateway: %s", msg)
				}
			}
			if linked := session.IsConnected(); linked != wasLinked {
				wasLinked = linked
				if linked {
					log.Println("BLE device connected")
				} else if msg := session.LastError(); msg != "" {
					log.Printf("BLE: %s", msg)
				}
			}
			if text := session.KeyboardInputText(); text != lastInput {
				lastInput = text
				log.Printf("Keyboard buffer: %q", text)
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			gw.DisconnectNow()
			session.DisconnectNow()
			log.Println("Goodbye!")
			return
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func resolveVoiceDir(dir string) string {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "handlink")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Failed to create voice directory %s: %v", dir, err)
	}
	return dir
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== handlink ===")
	if cfg.Gateway.URL != "" {
		fmt.Printf("  Gateway: %s (auth: %s)\n", cfg.Gateway.URL, cfg.Gateway.AuthMode)
	} else {
		fmt.Println("  Gateway: not configured")
	}
	if cfg.BLE.DeviceAddress != "" {
		fmt.Printf("  BLE:     %s (%s, auto: %v)\n", cfg.BLE.DeviceAddress, cfg.BLE.DeviceName, cfg.BLE.AutoConnect)
	} else {
		fmt.Println("  BLE:     no saved device")
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("================")
}
