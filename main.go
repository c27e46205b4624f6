package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// instanceID identifies this process in telemetry envelopes and log lines,
// the same role the teacher's instance name plays for its MQTT publisher.
func instanceID(serverName string, port int) string {
	return fmt.Sprintf("%s:%d", serverName, port)
}

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	host := flag.String("host", "", "Override server.host")
	port := flag.Int("port", 0, "Override server.port")
	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var store *ParameterStore
	if cfg.Simulator.ParameterFile != "" {
		store, err = LoadParameterStore(cfg.Simulator.ParameterFile)
		if err != nil {
			log.Fatalf("failed to load parameter file %s: %v", cfg.Simulator.ParameterFile, err)
		}
		log.Printf("loaded parameter file: %s", cfg.Simulator.ParameterFile)
	} else {
		store = NewParameterStore()
		log.Printf("no parameter file configured, starting with an empty parameter store")
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
		go serveHTTP("metrics", cfg.Metrics.Listen, metrics.Handler())
	}

	var telemetry *TelemetryPublisher
	if cfg.MQTT.Broker != "" {
		telemetry, err = NewTelemetryPublisher(cfg.MQTT, instanceID(cfg.Server.ServerName, cfg.Server.Port))
		if err != nil {
			log.Printf("warning: failed to start telemetry publisher: %v", err)
			telemetry = nil
		} else {
			defer telemetry.Disconnect()
			log.Printf("telemetry publishing to %s", cfg.MQTT.Broker)
		}
	}

	health, err := NewHealthReporter()
	if err != nil {
		log.Printf("warning: failed to start health reporter: %v", err)
		health = nil
	}

	var monitor *Monitor
	if cfg.Monitor.Enabled {
		monitor = NewMonitor()
		go serveHTTP("monitor", cfg.Monitor.Listen, http.HandlerFunc(monitor.ServeHTTP))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", addr, err)
	}

	listener := NewSessionListener(addr, store, cfg.Server.ServerName, cfg.Simulator.TimeScale, cfg.Server.CmdRateLimit, telemetry, metrics, health, monitor)

	if cfg.Health.Enabled && health != nil {
		go serveHTTP("health", cfg.Health.Listen, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handleHealth(w, health, listener)
		}))
	}

	log.Printf("Remote In simulator %q listening on %s (protocol %s)", cfg.Server.ServerName, addr, supportedProtocolVersion)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("shutting down...")
		ln.Close()
	}()

	if err := listener.Serve(ln); err != nil {
		if _, ok := err.(*net.OpError); ok {
			log.Println("server stopped")
			return
		}
		log.Printf("server stopped: %v", err)
	}
}

// handleHealth serves a JSON process/engine health snapshot, following
// the teacher's handleDecoderHealth shape: 200 with the snapshot body
// when healthy, 503 with the same body (listing the stale reason) when
// not.
func handleHealth(w http.ResponseWriter, health *HealthReporter, listener *SessionListener) {
	status := health.Snapshot(listener.CurrentStatus())
	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("health: encoding status: %v", err)
	}
}

// serveHTTP runs a single-handler HTTP server until it fails, logging
// rather than crashing the simulator: these are optional observability
// surfaces (SPEC_FULL.md 2.2/3.2), not part of the protocol core.
func serveHTTP(name, addr string, handler http.Handler) {
	log.Printf("%s endpoint listening on %s", name, addr)
	srv := &http.Server{Addr: addr, Handler: handler}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("%s endpoint stopped: %v", name, err)
	}
}
