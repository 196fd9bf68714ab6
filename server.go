package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// connLimiter caps concurrent connections per IP and in total
type connLimiter struct {
	mu      sync.Mutex
	ipConns map[string]int
	total   int
}

func newConnLimiter() *connLimiter {
	return &connLimiter{ipConns: make(map[string]int)}
}

func (l *connLimiter) canAccept(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= maxTotalConns {
		return false
	}
	if l.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (l *connLimiter) trackConnect(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ipConns[ip]++
	l.total++
}

func (l *connLimiter) trackDisconnect(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ipConns[ip]--
	if l.ipConns[ip] <= 0 {
		delete(l.ipConns, ip)
	}
	l.total--
}

// newUpgrader builds the WebSocket upgrader. An empty allow-list falls
// back to a same-host origin policy; non-browser clients without an
// Origin header are always accepted.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if len(allowedOrigins) == 0 {
				return u.Host == r.Host
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(u.Host, allowed) {
					return true
				}
			}
			return false
		},
	}
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ServerConfig holds the externally supplied HTTP-layer settings
type ServerConfig struct {
	ClientDir      string
	AllowedOrigins []string
	PublicURL      string
}

// StatusResponse is the monitor probe payload
type StatusResponse struct {
	Status    string  `json:"status"`
	Players   int     `json:"players"`
	Uptime    float64 `json:"uptime_seconds"`
	Timestamp int64   `json:"timestamp"`
	CheckedAt string  `json:"checked_at"`
}

// SetupRoutes configures HTTP routes
func SetupRoutes(world *World, auth *AdminAuth, analytics *Analytics, cfg ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	limiter := newConnLimiter()
	upgrader := newUpgrader(cfg.AllowedOrigins)
	started := time.Now()

	// Serve the browser client with no-cache so it always revalidates
	if cfg.ClientDir != "" {
		fs := http.FileServer(http.Dir(cfg.ClientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !limiter.canAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		limiter.trackConnect(ip)

		client := NewClient(world, conn, limiter, ip)
		client.playerID = world.Register(client)

		go client.WritePump()
		go client.ReadPump()
	})

	// Monitor probe; supports ?format=msgpack for binary consumers
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		resp := StatusResponse{
			Status:    "running",
			Players:   world.PlayerCount(),
			Uptime:    now.Sub(started).Seconds(),
			Timestamp: now.Unix(),
			CheckedAt: now.UTC().Format(time.RFC3339),
		}

		if r.URL.Query().Get("format") == "msgpack" {
			data, err := msgpack.Marshal(resp)
			if err != nil {
				http.Error(w, "encode error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/msgpack")
			w.Write(data)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	// QR code for joining from a phone
	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		target := cfg.PublicURL
		if target == "" {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			target = scheme + "://" + r.Host + "/"
		}
		png, err := qrcode.Encode(target, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		if auth == nil {
			http.Error(w, "admin API disabled", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		token, err := auth.Login(body.Password, extractIP(r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	mux.HandleFunc("/admin/metrics", func(w http.ResponseWriter, r *http.Request) {
		if auth == nil {
			http.Error(w, "admin API disabled", http.StatusNotFound)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if err := auth.ValidateToken(token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if analytics == nil {
			http.Error(w, "analytics disabled", http.StatusServiceUnavailable)
			return
		}
		metrics, err := analytics.Metrics()
		if err != nil {
			http.Error(w, "metrics error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics)
	})

	return mux
}
