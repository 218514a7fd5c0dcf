package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tripwire-data/telematics.report/api"
	"github.com/tripwire-data/telematics.report/internal/archive"
	"github.com/tripwire-data/telematics.report/internal/broadcast"
	"github.com/tripwire-data/telematics.report/internal/config"
	"github.com/tripwire-data/telematics.report/internal/ingest"
	"github.com/tripwire-data/telematics.report/internal/session"
	"github.com/tripwire-data/telematics.report/internal/transport"
	"github.com/tripwire-data/telematics.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file (defaults apply when empty)")
	listen     = flag.String("listen", ":8080", "Listen address")
	simMode    = flag.Bool("sim", false, "Feed simulated motion and location instead of hardware")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	arch, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		log.Fatalf("failed to open frame archive: %v", err)
	}
	defer arch.Close()

	tr := transport.NewMQTT(transport.Options{
		BrokerURL: cfg.BrokerURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		ClientID:  cfg.ClientID,
		Topic:     cfg.Topic,
		QoS:       cfg.QoS,
	})

	bus := broadcast.New()

	// Sources are constructed fresh for each session so a replugged GPS
	// gets a clean port open on the next start.
	newSources := func() []ingest.Source {
		var sources []ingest.Source
		if *simMode {
			sources = append(sources, &ingest.Simulator{})
		} else if cfg.GPSDevice != "" {
			sources = append(sources, ingest.NewSerialGPS(cfg.GPSDevice, cfg.GPSBaud))
		}
		if len(sources) == 0 {
			log.Print("no sensor sources configured; sessions will publish only baseline frames")
		}
		return sources
	}

	// Archived frames ride the same gate as the broker: every published
	// frame lands in both places.
	svc := session.NewService(tr, bus, newSources, arch)
	defer svc.Stop()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		srv := api.NewServer(svc, bus, arch)

		// mount the admin debugging routes (accessible only over
		// localhost or Tailscale)
		srv.AttachAdminRoutes(mux)

		apiMux := srv.ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("telematics agent %s (%s) listening on %s (broker %s, topic %s)",
		version.Version, version.GitSHA, *listen, cfg.BrokerURL, cfg.Topic)
	wg.Wait()
	log.Println("agent shut down cleanly")
}
