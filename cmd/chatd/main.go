// Command chatd runs the TaskChat backend: the WebSocket gateway over the
// realtime document store, the auth provider, and the Prometheus metrics
// endpoint. Configuration comes from environment variables; unset values
// fall back to local-development defaults.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/auth"
	"github.com/byteofhoney/TaskChatApp/internal/gateway"
	"github.com/byteofhoney/TaskChatApp/internal/messaging"
	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/store/memstore"
	"github.com/byteofhoney/TaskChatApp/internal/store/redistore"
)

func main() {
	config := gateway.DefaultConfig()

	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}
	if v := os.Getenv("COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.CommandTimeout = d
		}
	}

	storeKind := "redis"
	if v := os.Getenv("STORE"); v != "" {
		storeKind = v
	}

	// --- Document store ---
	var st store.Store
	var natsClient *messaging.NATSClient
	switch storeKind {
	case "memory":
		st = memstore.New()
		log.Printf("[chatd] using in-memory document store (state is not durable)")
	case "redis":
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.Name = "taskchat-chatd"
		if v := os.Getenv("NATS_URL"); v != "" {
			natsConfig.URL = v
		}
		var err error
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}

		redisAddr := "localhost:6379"
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			redisAddr = v
		}
		rdb, err := redistore.Connect(redisAddr)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		st = redistore.New(rdb, natsClient)
		log.Printf("[chatd] using Redis document store at %s", redisAddr)
	default:
		log.Fatalf("unknown STORE value %q (want \"redis\" or \"memory\")", storeKind)
	}

	// --- Auth provider ---
	var provider auth.Provider
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		db, err := auth.Open(dsn)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := auth.Migrate(db); err != nil {
			log.Fatalf("failed to migrate auth schema: %v", err)
		}
		provider = auth.NewPostgresProvider(db)
		log.Printf("[chatd] using Postgres auth provider")
	} else {
		provider = auth.NewMemoryProvider()
		log.Printf("[chatd] POSTGRES_DSN unset, using in-memory auth provider")
	}

	gw := gateway.NewServer(config, st, provider)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	mux.HandleFunc("/health", gw.HandleHealth)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{Addr: listenAddr, Handler: mux}

	log.Printf("TaskChat gateway starting")
	log.Printf("  listen_addr:     %s", listenAddr)
	log.Printf("  store:           %s", storeKind)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  command_timeout: %s", config.CommandTimeout)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	gw.Shutdown()
	if natsClient != nil {
		natsClient.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
