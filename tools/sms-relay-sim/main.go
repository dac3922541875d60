// sms-relay-sim is a local stand-in for the SMS relay. It accepts outbound
// sends from notification-service, drops resends of dedupe tokens it has
// already seen, and can forward a typed reply back to the inbound webhook.
//
// Try it:
//
//	go run ./tools/sms-relay-sim -port 9090 -webhook-url http://localhost:8082/webhooks/sms
//	curl -s localhost:9090/reply -d '{"thread_ref":"thr_1","from_phone":"+15550001111","body":"YES"}'
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type relay struct {
	mu     sync.Mutex
	seen   map[string]string // dedupe token -> thread ref
	nextID int

	webhookURL string
	logger     *slog.Logger
}

type sendRequest struct {
	To          string `json:"to"`
	Body        string `json:"body"`
	DedupeToken string `json:"dedupe_token"`
}

func (s *relay) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	threadRef, dup := s.seen[req.DedupeToken]
	if !dup {
		s.nextID++
		threadRef = fmt.Sprintf("thr_%d", s.nextID)
		if req.DedupeToken != "" {
			s.seen[req.DedupeToken] = threadRef
		}
	}
	s.mu.Unlock()

	if dup {
		s.logger.Info("duplicate send dropped", "token", req.DedupeToken, "thread_ref", threadRef)
	} else {
		s.logger.Info("sms out", "to", req.To, "thread_ref", threadRef, "body", req.Body)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"thread_ref": threadRef})
}

// handleReply lets a human (or a test script) answer as the customer: the
// posted body is forwarded verbatim to the notification-service webhook.
func (s *relay) handleReply(w http.ResponseWriter, r *http.Request) {
	var reply map[string]any
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if _, ok := reply["received_at"]; !ok {
		reply["received_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := http.Post(s.webhookURL, "application/json", bytes.NewReader(raw))
	if err != nil {
		http.Error(w, "webhook unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	s.logger.Info("reply forwarded", "webhook_status", resp.StatusCode)
	w.WriteHeader(resp.StatusCode)
}

func main() {
	var (
		port       = flag.String("port", getenv("PORT", "9090"), "listen port")
		webhookURL = flag.String("webhook-url", getenv("SMS_WEBHOOK_URL", "http://localhost:8082/webhooks/sms"), "notification-service inbound webhook")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "sms-relay-sim")
	s := &relay{
		seen:       make(map[string]string),
		webhookURL: strings.TrimSpace(*webhookURL),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/send", s.handleSend)
	mux.HandleFunc("/reply", s.handleReply)

	logger.Info("sms relay sim listening", "addr", ":"+*port)
	if err := http.ListenAndServe(":"+*port, mux); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
