// Command apiserver runs the support-chat REST API: chat requests, message
// history, FAQ browsing and the staff console endpoints.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/config"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/httpapi"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/postgres"
	"github.com/pesocareers/support-chat/internal/ratelimit"
	"github.com/pesocareers/support-chat/internal/realtime"
	"github.com/pesocareers/support-chat/internal/session"
	"github.com/pesocareers/support-chat/internal/support"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- Postgres ---
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// --- Redis ---
	sessions, rdb, err := session.Dial(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// --- NATS ---
	natsCfg := realtime.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.Name = "support-chat-api"
	rt, err := realtime.Connect(natsCfg)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer rt.Close()

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	svc := support.New(sessions, message.NewStore(db), faq.NewStore(db), rt)

	api := httpapi.New(httpapi.Config{
		Service:        svc,
		Tokens:         tokens,
		Limiter:        ratelimit.NewLimiter(rdb),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[api] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[api] server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[api] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[api] shutdown error: %v", err)
	}
	log.Println("[api] stopped")
}
