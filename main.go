package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const shutdownReason = "server shutting down"

func main() {
	addr := flag.String("addr", defaultAddr(), "HTTP listen address")
	clientDir := flag.String("client", "", "Path to client directory (empty: no static hosting)")
	dbPath := flag.String("db", os.Getenv("ECHO_DB"), "Path to SQLite database (empty: analytics disabled)")
	origins := flag.String("origins", os.Getenv("ECHO_ORIGINS"), "Comma-separated origin allow-list (empty: same-host only)")
	publicURL := flag.String("public-url", os.Getenv("ECHO_PUBLIC_URL"), "Public URL encoded in the /qr endpoint")
	flag.Parse()

	var db *DB
	if *dbPath != "" {
		var err error
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
	}

	var analytics *Analytics
	if db != nil {
		analytics = NewAnalytics(db)
	}

	var auth *AdminAuth
	if pw := os.Getenv("ECHO_ADMIN_PASSWORD"); pw != "" {
		var err error
		auth, err = NewAdminAuth(pw, db)
		if err != nil {
			log.Fatalf("admin auth: %v", err)
		}
	}

	world := NewWorld(analytics)
	go world.Run()

	mux := SetupRoutes(world, auth, analytics, ServerConfig{
		ClientDir:      *clientDir,
		AllowedOrigins: splitOrigins(*origins),
		PublicURL:      *publicURL,
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Echo Chamber server starting on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	world.Shutdown(shutdownReason)
	server.Close()
	if analytics != nil {
		analytics.Stop()
	}
	if db != nil {
		db.Close()
	}
}

// defaultAddr honours the PORT environment variable so platform
// deploys work without flags
func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8765"
}

func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
