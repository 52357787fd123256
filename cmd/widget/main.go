// Command widget is a terminal support-chat client built on the widget
// core. It talks to the REST API for requests and history, and to NATS for
// realtime delivery, the same wiring the embedded web widget uses.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/realtime"
	"github.com/pesocareers/support-chat/internal/widget"
)

// httpBackend implements widget.Backend over the REST API.
type httpBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

func newHTTPBackend(baseURL, token string) *httpBackend {
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *httpBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("api returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *httpBackend) RequestChat(ctx context.Context, concern string) (widget.RequestResult, error) {
	var resp struct {
		SessionID string        `json:"session_id"`
		Message   event.Message `json:"message"`
	}
	err := b.do(ctx, http.MethodPost, "/chat/request", map[string]string{"concern": concern}, &resp)
	if err != nil {
		return widget.RequestResult{}, err
	}
	return widget.RequestResult{SessionID: resp.SessionID, Message: resp.Message}, nil
}

func (b *httpBackend) SendMessage(ctx context.Context, sessionID, body string) (event.Message, error) {
	var resp struct {
		Message event.Message `json:"message"`
	}
	err := b.do(ctx, http.MethodPost, "/chat/messages",
		map[string]string{"session_id": sessionID, "body": body}, &resp)
	return resp.Message, err
}

func (b *httpBackend) CloseChat(ctx context.Context, sessionID string) error {
	return b.do(ctx, http.MethodPost, "/chat/close", map[string]string{"session_id": sessionID}, nil)
}

func (b *httpBackend) FetchFAQs(ctx context.Context) ([]faq.FAQ, error) {
	var resp struct {
		FAQs []faq.FAQ `json:"faqs"`
	}
	err := b.do(ctx, http.MethodGet, "/chat/faqs", nil, &resp)
	return resp.FAQs, err
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8080", "REST API address")
	natsURL := flag.String("nats", "nats://localhost:4222", "NATS server URL")
	userID := flag.String("user", "seeker-1", "user id")
	name := flag.String("name", "Terminal User", "display name")
	secret := flag.String("secret", "", "JWT secret for minting a dev token (or set TOKEN)")
	flag.Parse()

	token := os.Getenv("TOKEN")
	if token == "" {
		if *secret == "" {
			log.Fatal("either TOKEN env var or -secret is required")
		}
		tokens, err := auth.NewManager(*secret, 24*time.Hour)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		token, err = tokens.Generate(*userID, *name, auth.RoleSeeker)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
	}

	natsCfg := realtime.DefaultConfig()
	natsCfg.URL = *natsURL
	natsCfg.Name = "support-chat-widget"
	rt, err := realtime.Connect(natsCfg)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer rt.Close()

	w, err := widget.New(widget.Config{
		Backend:    newHTTPBackend(*apiAddr, token),
		Subscriber: widget.NATSSubscriber{Client: rt},
		Typing:     rt,
		Identity:   widget.StaticIdentity{ID: auth.Identity{UserID: *userID, Name: *name, Role: auth.RoleSeeker}},
		Logf:       func(format string, args ...interface{}) { log.Printf(format, args...) },
	})
	if err != nil {
		log.Fatalf("widget: %v", err)
	}
	defer w.Shutdown()

	fmt.Println("PESO Careers support chat")
	fmt.Println("commands: /faq, /chat <concern>, /end, /back, /history, /quit")
	fmt.Println("anything else is sent as a message while in live chat")

	go renderLoop(w)

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			w.Dismiss(ctx)
			return

		case line == "/faq":
			if err := w.OpenFAQ(ctx); err != nil {
				fmt.Println("!", err)
				continue
			}
			for _, f := range w.FAQs() {
				fmt.Printf("[%s] %s\n    %s\n", f.Category, f.Question, f.Answer)
			}
			w.Back()

		case strings.HasPrefix(line, "/chat "):
			concern := strings.TrimSpace(strings.TrimPrefix(line, "/chat "))
			if err := w.StartConcern(); err != nil {
				fmt.Println("!", err)
				continue
			}
			if err := w.SubmitConcern(ctx, concern); err != nil {
				fmt.Println("!", err)
				w.Back()
				continue
			}
			fmt.Printf("session %s started\n", w.SessionID())

		case line == "/end":
			if err := w.EndChat(ctx); err != nil {
				fmt.Println("!", err)
			}

		case line == "/back":
			w.Back()

		case line == "/history":
			for _, m := range w.Messages() {
				printMessage(m)
			}

		default:
			if w.Mode() != widget.ModeLive {
				fmt.Println("! not in a live chat; use /chat <concern> to start one")
				continue
			}
			w.InputChanged()
			if err := w.Send(ctx, line); err != nil {
				fmt.Println("!", err)
			}
		}
	}
}

// renderLoop polls the widget log and prints entries as they arrive. A
// cursor over the snapshot keeps already-printed entries from repeating.
func renderLoop(w *widget.Widget) {
	printed := make(map[string]bool)
	typingShown := false

	for {
		time.Sleep(300 * time.Millisecond)

		for _, m := range w.Messages() {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			printMessage(m)
		}

		if w.AdminTyping() != typingShown {
			typingShown = !typingShown
			if typingShown {
				fmt.Println("… admin is typing")
			}
		}
	}
}

func printMessage(m event.Message) {
	label := m.Sender
	if m.Sender == event.SenderBot {
		label = "system"
	}
	fmt.Printf("<%s> %s\n", label, m.Body)
	for _, a := range m.Actions {
		fmt.Printf("    [%s] -> send %q\n", a.Label, a.Value)
	}
}
