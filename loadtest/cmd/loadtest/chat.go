package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pesocareers/support-chat/loadtest/client"
	"github.com/pesocareers/support-chat/loadtest/stats"
)

// sessionResult tracks the outcome of a single support session's lifecycle.
type sessionResult struct {
	created       bool
	joined        bool
	msgSent       int64
	msgRecv       int64
	endedCleanly  bool
	pickupLatency time.Duration
}

// runChat implements the full session lifecycle load test. Each simulated
// session goes through the complete flow: a seeker connects and sends
// request_chat, a staff client joins the session through the admin REST
// endpoint and attaches over WebSocket, both sides exchange messages, and
// the seeker ends the chat. This test measures pickup latency and message
// throughput for the entire support experience.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8081/ws", "Gateway WebSocket URL")
	apiURL := fs.String("api-url", "http://localhost:8080", "REST API base URL (for staff join)")
	secret := fs.String("secret", "", "JWT secret the servers were started with (or JWT_SECRET env)")
	sessions := fs.Int("sessions", 100, "Number of concurrent support sessions")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	chatDuration := fs.Duration("chat-duration", 30*time.Second, "How long each session chats")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per side")
	msgSize := fs.Int("msg-size", 128, "Size of each message payload in bytes")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	pickupTimeout := fs.Duration("pickup-timeout", 30*time.Second, "Timeout waiting for session creation and staff pickup")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	if *secret == "" {
		*secret = os.Getenv("JWT_SECRET")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "chat: -secret or JWT_SECRET is required")
		os.Exit(1)
	}

	totalClients := *sessions * 2

	fmt.Printf("Chat test: %d sessions (%d clients) to %s (ramp=%s, chat=%s, interval=%s, msg-size=%d, concurrency=%d)\n",
		*sessions, totalClients, *url, *rampUp, *chatDuration, *msgInterval, *msgSize, *concurrency)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	// Set up metrics scraper.
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	// Seeker and staff connections are tracked separately so each session
	// gets one of each.
	var mu sync.Mutex
	seekers := make([]*client.Client, 0, *sessions)
	staff := make([]*client.Client, 0, *sessions)
	staffTokens := make([]string, 0, *sessions)

	// Track whether ramp-up was interrupted so we can skip later phases.
	interrupted := false

	// -----------------------------------------------------------------------
	// Phase 1: Connect all seekers and staff
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Connect all clients ---")

	interval := *rampUp / time.Duration(totalClients)
	if interval <= 0 {
		interval = time.Millisecond
	}

	// Semaphore to bound concurrent connection attempts.
	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	// Progress reporting: every 2 seconds during ramp-up.
	progressStop := make(chan struct{})
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		lastCount := 0
		lastTime := time.Now()
		for {
			select {
			case <-ticker.C:
				now := time.Now()
				currentConns := collector.ConnectionCount()
				currentErrs := collector.ErrorCount()
				dt := now.Sub(lastTime).Seconds()
				rate := float64(currentConns-lastCount) / dt
				fmt.Printf("  [connect] connections: %d/%d  errors: %d  rate: %.1f conn/s\n",
					currentConns, totalClients, currentErrs, rate)
				lastCount = currentConns
				lastTime = now
			case <-progressStop:
				return
			}
		}
	}()

	rampStart := time.Now()
	rampTicker := time.NewTicker(interval)

	launched := 0
	for launched < totalClients {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during connection phase.")
			interrupted = true
			launched = totalClients // Break the loop.
		case <-rampTicker.C:
			launched++
			seq := launched
			wg.Add(1)
			sem <- struct{}{} // Acquire semaphore slot.

			go func() {
				defer wg.Done()
				defer func() { <-sem }() // Release semaphore slot.

				// Odd launches become seekers, even launches staff.
				role := client.RoleSeeker
				if seq%2 == 0 {
					role = client.RoleStaff
				}
				token, err := client.MintToken(*secret,
					fmt.Sprintf("load-%s-%d", role, seq),
					fmt.Sprintf("Load %s %d", role, seq), role)
				if err != nil {
					collector.AddError()
					return
				}

				connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
				defer connCancel()

				c, err := client.New(connCtx, client.DialURL(*url, token))
				if err != nil {
					collector.AddError()
					return
				}

				if err := c.Ping(connCtx); err != nil {
					collector.AddError()
					c.Close()
					return
				}

				m := c.GetMetrics()
				collector.AddConnect(m.ConnectLatency)

				mu.Lock()
				if role == client.RoleSeeker {
					seekers = append(seekers, c)
				} else {
					staff = append(staff, c)
					staffTokens = append(staffTokens, token)
				}
				mu.Unlock()
			}()
		}
	}

	rampTicker.Stop()
	wg.Wait()
	close(progressStop)
	progressWg.Wait()

	rampElapsed := time.Since(rampStart)
	mu.Lock()
	connectedCount := len(seekers) + len(staff)
	mu.Unlock()
	fmt.Printf("\nPhase 1 complete: %d/%d connections in %s (%d errors)\n",
		connectedCount, totalClients,
		rampElapsed.Round(time.Millisecond), collector.ErrorCount())

	cleanupAll := func() {
		mu.Lock()
		all := append(append([]*client.Client{}, seekers...), staff...)
		mu.Unlock()
		cleanup(all)
	}

	if interrupted {
		fmt.Println("Interrupted, skipping chat phases.")
		cleanupAll()
		scraper.Stop()
		collector.Report()
		return
	}

	// Each session needs one seeker and one staff client.
	mu.Lock()
	actualSessions := len(seekers)
	if len(staff) < actualSessions {
		actualSessions = len(staff)
	}
	mu.Unlock()

	if actualSessions == 0 {
		fmt.Println("No sessions could be formed: not enough connections.")
		cleanupAll()
		scraper.Stop()
		collector.Report()
		return
	}

	// -----------------------------------------------------------------------
	// Phase 2-4: Request, Join, Chat, End (per session)
	// -----------------------------------------------------------------------
	fmt.Printf("\n--- Phase 2-4: Running %d support sessions ---\n", actualSessions)

	// Global atomic counters for progress reporting.
	var totalMsgSent atomic.Int64
	var totalMsgRecv atomic.Int64
	var activeSessionCount atomic.Int64
	var completedSessions atomic.Int64
	var errorCount atomic.Int64

	// Collect results from each session.
	results := make([]sessionResult, actualSessions)

	// WaitGroup for all session goroutines.
	var sessionWg sync.WaitGroup

	// Generate message payload once (reused by all sessions).
	msgPayload := strings.Repeat("abcdefgh", (*msgSize/8)+1)
	msgPayload = msgPayload[:*msgSize]

	// Progress reporting every 5 seconds.
	chatProgressStop := make(chan struct{})
	var chatProgressWg sync.WaitGroup
	chatProgressWg.Add(1)
	go func() {
		defer chatProgressWg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				active := activeSessionCount.Load()
				completed := completedSessions.Load()
				sent := totalMsgSent.Load()
				recv := totalMsgRecv.Load()
				errs := errorCount.Load()
				fmt.Printf("  [chat] active: %d  completed: %d/%d  sent: %d  recv: %d  errors: %d\n",
					active, completed, actualSessions, sent, recv, errs)
			case <-chatProgressStop:
				return
			}
		}
	}()

	chatStart := time.Now()

	for i := 0; i < actualSessions; i++ {
		i := i
		seeker := seekers[i]
		admin := staff[i]
		adminToken := staffTokens[i]

		sessionWg.Add(1)
		go func() {
			defer sessionWg.Done()

			// Stagger request_chat sends by 100ms between sessions to avoid
			// hammering the API in one burst.
			stagger := time.Duration(i) * 100 * time.Millisecond
			select {
			case <-time.After(stagger):
			case <-ctx.Done():
				return
			}

			runSession(ctx, seeker, admin, adminToken, *apiURL, httpClient,
				*chatDuration, *msgInterval, *pickupTimeout,
				msgPayload, collector, &results[i],
				&totalMsgSent, &totalMsgRecv, &activeSessionCount, &completedSessions, &errorCount)
		}()
	}

	// Wait for all sessions to complete.
	allDone := make(chan struct{})
	go func() {
		sessionWg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		// All sessions finished.
	case <-ctx.Done():
		fmt.Println("\nInterrupted, waiting for sessions to wind down...")
		<-allDone
	}

	close(chatProgressStop)
	chatProgressWg.Wait()

	chatElapsed := time.Since(chatStart)

	// -----------------------------------------------------------------------
	// Final report
	// -----------------------------------------------------------------------
	var successfulChats int
	var totalSent, totalRecv int64
	var totalPickupLatency time.Duration
	joinedCount := 0

	for _, r := range results {
		if r.endedCleanly {
			successfulChats++
		}
		totalSent += r.msgSent
		totalRecv += r.msgRecv
		if r.joined {
			joinedCount++
			totalPickupLatency += r.pickupLatency
		}
	}

	fmt.Printf("\n--- Chat Results ---\n")
	fmt.Printf("Successful chats:   %d / %d\n", successfulChats, actualSessions)
	fmt.Printf("Sessions picked up: %d / %d\n", joinedCount, actualSessions)
	fmt.Printf("Total msg sent:     %d\n", totalSent)
	fmt.Printf("Total msg recv:     %d\n", totalRecv)
	fmt.Printf("Chat duration:      %s\n", chatElapsed.Round(time.Millisecond))
	if joinedCount > 0 {
		avgPickup := totalPickupLatency / time.Duration(joinedCount)
		fmt.Printf("Avg pickup latency: %s\n", avgPickup.Round(time.Millisecond))
	}
	if chatElapsed.Seconds() > 0 && totalSent > 0 {
		fmt.Printf("Msg throughput:     %.1f msg/s\n", float64(totalSent)/chatElapsed.Seconds())
	}

	// -----------------------------------------------------------------------
	// Cleanup
	// -----------------------------------------------------------------------
	cleanupAll()
	scraper.Stop()
	collector.Report()
}

// cleanup closes all the given client connections.
func cleanup(clients []*client.Client) {
	fmt.Println("\n--- Cleanup ---")
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		c.Close()
	}
	fmt.Println("All connections closed.")
}

// joinSession calls the admin REST endpoint to assign the staff member to the
// waiting session.
func joinSession(ctx context.Context, httpClient *http.Client, apiURL, sessionID, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/admin/sessions/%s/join", apiURL, sessionID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join returned status %d", resp.StatusCode)
	}
	return nil
}

// runSession executes the full lifecycle for one support session:
// request_chat -> staff join -> exchange messages -> end_chat.
// It returns after the chat ends or the context is cancelled.
func runSession(
	ctx context.Context,
	seeker, admin *client.Client,
	adminToken, apiURL string,
	httpClient *http.Client,
	chatDuration, msgInterval, pickupTimeout time.Duration,
	msgPayload string,
	collector *stats.Collector,
	result *sessionResult,
	totalMsgSent, totalMsgRecv, activeSessionCount, completedSessions, errorCount *atomic.Int64,
) {
	defer completedSessions.Add(1)

	// Channels to coordinate the lifecycle. Status updates carry the new
	// session status string.
	seekerActive := make(chan struct{}, 1)
	seekerClosed := make(chan struct{}, 1)
	adminClosed := make(chan struct{}, 1)

	// Channels for message reception during the chat phase.
	seekerMsgRecv := make(chan struct{}, 100)
	adminMsgRecv := make(chan struct{}, 100)

	seeker.On(client.TypeSessionStatus, func(raw json.RawMessage) {
		var msg struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		switch msg.Status {
		case "active":
			select {
			case seekerActive <- struct{}{}:
			default:
			}
		case "closed":
			select {
			case seekerClosed <- struct{}{}:
			default:
			}
		}
	})

	admin.On(client.TypeSessionStatus, func(raw json.RawMessage) {
		var msg struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &msg); err == nil && msg.Status == "closed" {
			select {
			case adminClosed <- struct{}{}:
			default:
			}
		}
	})

	seeker.On(client.TypeChatMessage, func(raw json.RawMessage) {
		totalMsgRecv.Add(1)
		select {
		case seekerMsgRecv <- struct{}{}:
		default:
		}
	})

	admin.On(client.TypeChatMessage, func(raw json.RawMessage) {
		totalMsgRecv.Add(1)
		select {
		case adminMsgRecv <- struct{}{}:
		default:
		}
	})

	// --- Phase 2: Request and pickup ---

	pickupStart := time.Now()
	pickupCtx, pickupCancel := context.WithTimeout(ctx, pickupTimeout)
	defer pickupCancel()

	if err := seeker.RequestChat("Load test concern: " + msgPayload[:32]); err != nil {
		errorCount.Add(1)
		collector.AddError()
		return
	}

	if err := seeker.WaitForSession(pickupCtx); err != nil {
		errorCount.Add(1)
		collector.AddError()
		return
	}
	sessionID := seeker.SessionID()
	result.created = true

	// Staff picks the session up through the admin API.
	if err := joinSession(pickupCtx, httpClient, apiURL, sessionID, adminToken); err != nil {
		errorCount.Add(1)
		collector.AddError()
		return
	}

	// Wait for the status change to reach the seeker over NATS.
	select {
	case <-seekerActive:
	case <-pickupCtx.Done():
		errorCount.Add(1)
		collector.AddError()
		return
	}

	result.joined = true
	result.pickupLatency = time.Since(pickupStart)

	// The staff WebSocket attaches to the session on its first message.
	if err := admin.Send(map[string]string{
		"type":       client.TypeMessage,
		"session_id": sessionID,
		"body":       "Hello, how can I help?",
	}); err != nil {
		errorCount.Add(1)
		collector.AddError()
		return
	}
	totalMsgSent.Add(1)
	result.msgSent++

	// --- Phase 3: Chat ---

	activeSessionCount.Add(1)
	defer activeSessionCount.Add(-1)

	chatCtx, chatCancel := context.WithTimeout(ctx, chatDuration)
	defer chatCancel()

	// Each side sends messages on its own ticker. We track approximate
	// message latency by recording the time of the last send and measuring
	// until the next receive on the same client.
	var seekerLastSend atomic.Int64 // unix nanoseconds of last send
	var adminLastSend atomic.Int64  // unix nanoseconds of last send

	var chatWg sync.WaitGroup
	chatWg.Add(2)

	sendLoop := func(c *client.Client, lastSend *atomic.Int64) {
		defer chatWg.Done()
		ticker := time.NewTicker(msgInterval)
		defer ticker.Stop()

		for {
			select {
			case <-chatCtx.Done():
				return
			case <-ticker.C:
				lastSend.Store(time.Now().UnixNano())
				if err := c.Send(map[string]string{
					"type":       client.TypeMessage,
					"session_id": sessionID,
					"body":       msgPayload,
				}); err != nil {
					errorCount.Add(1)
					collector.AddError()
					return
				}
				totalMsgSent.Add(1)
				result.msgSent++
			}
		}
	}

	go sendLoop(seeker, &seekerLastSend)
	go sendLoop(admin, &adminLastSend)

	recvLoop := func(recv chan struct{}, lastSend *atomic.Int64) {
		defer chatWg.Done()
		for {
			select {
			case <-chatCtx.Done():
				return
			case <-recv:
				result.msgRecv++
				// Approximate latency: time since this side's last send.
				if ts := lastSend.Load(); ts > 0 {
					collector.AddMsgLatency(time.Since(time.Unix(0, ts)))
				}
			}
		}
	}

	chatWg.Add(2)
	go recvLoop(seekerMsgRecv, &seekerLastSend)
	go recvLoop(adminMsgRecv, &adminLastSend)

	// Wait for the chat duration to expire.
	chatWg.Wait()

	// --- Phase 4: End Chat ---

	if err := seeker.Send(map[string]string{
		"type":       client.TypeEndChat,
		"session_id": sessionID,
	}); err != nil {
		errorCount.Add(1)
		collector.AddError()
		return
	}

	// Both sides should see the closed status; either one counts as a clean
	// end.
	endCtx, endCancel := context.WithTimeout(ctx, 5*time.Second)
	defer endCancel()

	select {
	case <-adminClosed:
		result.endedCleanly = true
	case <-seekerClosed:
		result.endedCleanly = true
	case <-endCtx.Done():
		errorCount.Add(1)
		collector.AddError()
	}
}
