// Command gateway runs the widget-facing WebSocket gateway. It bridges
// widget sockets to the support service and forwards each session's NATS
// events back down the socket.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/config"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/postgres"
	"github.com/pesocareers/support-chat/internal/ratelimit"
	"github.com/pesocareers/support-chat/internal/realtime"
	"github.com/pesocareers/support-chat/internal/session"
	"github.com/pesocareers/support-chat/internal/support"
	"github.com/pesocareers/support-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	serverCfg := ws.DefaultServerConfig()
	serverCfg.ListenAddr = cfg.GatewayAddr
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			serverCfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			serverCfg.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			serverCfg.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			serverCfg.WriteTimeout = d
		}
	}

	// --- Postgres ---
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// --- Redis ---
	sessions, rdb, err := session.Dial(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// --- NATS ---
	natsCfg := realtime.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.Name = "support-chat-gateway"
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

	// Messages sent through the REST API must still be replayable here.
	feed, err := svc.StartReplayFeed()
	if err != nil {
		log.Fatalf("replay feed: %v", err)
	}
	defer feed.Close()

	log.Printf("support-chat gateway starting")
	log.Printf("  listen_addr:     %s", serverCfg.ListenAddr)
	log.Printf("  worker_pool:     %d", serverCfg.WorkerPoolSize)
	log.Printf("  max_connections: %d", serverCfg.MaxConnections)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)

	dispatcher := ws.NewMessageDispatcher()
	server := ws.NewServer(serverCfg, tokens, ratelimit.NewLimiter(rdb), dispatcher.Dispatch)
	dispatcher.SetServer(server)

	gateway := ws.NewGateway(svc, rt, dispatcher)
	server.SetOnDisconnect(gateway.OnDisconnect)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		if err := server.Shutdown(); err != nil {
			log.Printf("[ws] shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
