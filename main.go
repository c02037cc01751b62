package main

import (
	"context"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/collabware/livecursor/internal/cursor"
	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/middleware"
	"github.com/collabware/livecursor/internal/presence"
	"github.com/collabware/livecursor/internal/transport"
	"github.com/collabware/livecursor/internal/user"
)

const cleanupInterval = 15 * time.Second

func main() {
	// .env is optional; environment wins when both are set
	godotenv.Load()

	var (
		addr   = flag.String("addr", ":8080", "listen address")
		dbPath = flag.String("db", "", "sqlite file for durable presence (disabled when empty)")
		ttl    = flag.Duration("ttl", presence.DefaultTTL, "ephemeral presence lifetime")
		demo   = flag.Bool("demo", false, "run simulated cursors in group \"demo\"")
	)
	flag.Parse()

	var durable *presence.DurableStore
	if *dbPath != "" {
		var err error
		durable, err = presence.OpenDurableStore(*dbPath)
		if err != nil {
			log.Fatalf("Error opening durable presence store: %v", err)
		}
		defer durable.Close()
		log.Printf("Durable presence stored in %s", *dbPath)
	}

	svc := presence.NewService(*ttl, durable)
	limits := middleware.DefaultLimits()
	sessions := transport.NewSessionManager(limits)
	ipLimiter := middleware.NewIPRateLimit(6*time.Second, 5)
	server := transport.NewServer(svc, sessions, limits, ipLimiter)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cleanupLoop(ctx, svc, sessions, ipLimiter)

	if *demo {
		go runDemo(ctx, svc)
	}

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	// Graceful shutdown
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Presence server started on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-shutdownChannel
	log.Println("Shutting down server...")
	cancel()

	shutdownContext, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownContext); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// cleanupLoop: routine to expire lapsed presence, idle sessions and stale
// IP limiters.
func cleanupLoop(ctx context.Context, svc *presence.Service, sessions *transport.SessionManager, ipLimiter *middleware.IPRateLimit) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Cleanup()
			sessions.Cleanup()
			ipLimiter.Cleanup()
		}
	}
}

// runDemo drives a pair of simulated cursors through the engine so a client
// connecting to group "demo" has something to watch.
func runDemo(ctx context.Context, svc *presence.Service) {
	page := location.Location{"page": "demo"}

	users := user.NewStaticProvider()
	users.AddUser("demo-ada", "Ada")
	users.AddUser("demo-grace", "Grace")

	for i, id := range []string{"demo-ada", "demo-grace"} {
		client := presence.NewMemoryClient(svc, "demo", id)

		opts := cursor.DefaultOptions(page)
		opts.GroupID = "demo"
		opts.ShowCursors = false

		lc, err := cursor.New(client, users, opts)
		if err != nil {
			log.Printf("Error starting demo cursor %s: %v", id, err)
			return
		}
		if err := lc.Start(ctx); err != nil {
			log.Printf("Error starting demo cursor %s: %v", id, err)
			return
		}
		defer lc.Stop()

		go demoPath(ctx, lc, float64(i))
	}

	<-ctx.Done()
}

// demoPath moves one cursor along a slow Lissajous curve.
func demoPath(ctx context.Context, lc *cursor.LiveCursors, phase float64) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := time.Since(start).Seconds() + phase*math.Pi
			lc.OnMouseMove(cursor.PointerEvent{
				PageX: 400 + 300*math.Sin(t/3),
				PageY: 300 + 200*math.Sin(t/2),
			})
		}
	}
}
