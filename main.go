package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/chatsync"
	"github.com/pliu/pinchat/internal/config"
	"github.com/pliu/pinchat/internal/dashboard"
	"github.com/pliu/pinchat/internal/dm"
	"github.com/pliu/pinchat/internal/handlers"
	"github.com/pliu/pinchat/internal/middleware"
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/realtime"
	"github.com/pliu/pinchat/internal/session"
	"github.com/pliu/pinchat/internal/store"
	"github.com/pliu/pinchat/internal/store/sqlstore"
	"github.com/pliu/pinchat/internal/ws"
	flag "github.com/spf13/pflag"
)

var (
	addr    = flag.String("addr", "", "http service address (overrides ADDR)")
	envFile = flag.String("env-file", ".env", "optional file of environment variables")
)

type app struct {
	cfg      *config.Config
	store    store.Store
	hub      *realtime.Hub
	sessions *middleware.Sessions
	workflow *auth.Workflow
	engine   *chatsync.Engine
	dm       *dm.Provisioner
	dash     *dashboard.Service
}

func newApp(cfg *config.Config, base store.Store, hub *realtime.Hub) *app {
	s := realtime.Notify(base, hub)
	provisioner := dm.New(s)
	return &app{
		cfg:   cfg,
		store: s,
		hub:   hub,
		sessions: &middleware.Sessions{
			Manager: session.NewManager(),
			Signer:  auth.NewCookieSigner([]byte(cfg.CookieSecret)),
		},
		workflow: &auth.Workflow{
			Store:       s,
			PIN:         auth.NewVerifier(cfg.AppPIN, cfg.AppPINHash),
			OwnerSecret: auth.NewVerifier(cfg.OwnerSecret, cfg.OwnerSecretHash),
			OwnerEmail:  cfg.OwnerEmail,
			HashCost:    cfg.BcryptCost,
			DM:          provisioner,
		},
		engine: chatsync.New(s, hub),
		dm:     provisioner,
		dash:   dashboard.New(s, provisioner, cfg.BcryptCost),
	}
}

func (a *app) router(ctx context.Context) http.Handler {
	authHandler := &handlers.AuthHandler{Workflow: a.workflow, Sessions: a.sessions}
	chatHandler := &handlers.ChatHandler{Store: a.store, Engine: a.engine, DM: a.dm}
	dashHandler := &handlers.DashboardHandler{Service: a.dash}
	liveHandler := ws.NewHandler(ctx, a.engine)
	liveHandler.Upgrader.CheckOrigin = a.checkOrigin

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.Timeout(a.cfg.RequestTimeout))
	r.Use(a.sessions.Load)

	api := r.PathPrefix("/api").Subrouter()

	// Lock screen and login
	api.HandleFunc("/unlock", authHandler.Unlock).Methods("POST")
	api.HandleFunc("/auth/owner", authHandler.OwnerLogin).Methods("POST")
	api.HandleFunc("/auth/user", authHandler.UserLogin).Methods("POST")
	api.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	api.HandleFunc("/session", authHandler.Session).Methods("GET")

	// Chats, for either role
	chats := api.NewRoute().Subrouter()
	chats.Use(middleware.RequireAuth())
	chats.HandleFunc("/dm/{userID}", chatHandler.ResolveDM).Methods("GET")
	chats.HandleFunc("/chats/{id}", chatHandler.GetChat).Methods("GET")
	chats.HandleFunc("/chats/{id}/messages", chatHandler.SendMessage).Methods("POST")
	chats.HandleFunc("/messages/{id}/reactions", chatHandler.ToggleReaction).Methods("POST")
	chats.HandleFunc("/chats/{id}/live", liveHandler.ServeLive).Methods("GET")

	// Owner dashboard
	owner := api.PathPrefix("/owner").Subrouter()
	owner.Use(middleware.RequireAuth(models.RoleOwner))
	owner.HandleFunc("/users", dashHandler.ListUsers).Methods("GET")
	owner.HandleFunc("/users", dashHandler.CreateUser).Methods("POST")
	owner.HandleFunc("/users/{id}", dashHandler.UpdateUser).Methods("PATCH")
	owner.HandleFunc("/chats", dashHandler.ListChats).Methods("GET")
	owner.HandleFunc("/chats", dashHandler.CreateChat).Methods("POST")
	owner.HandleFunc("/chats/{id}/participants", dashHandler.AssignUser).Methods("POST")
	owner.HandleFunc("/chats/{id}", dashHandler.DeleteChat).Methods("DELETE")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	// Outside the router so preflight requests, which match no route, are
	// answered too.
	return cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

// checkOrigin accepts same-origin upgrades and the configured CORS origins.
func (a *app) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return slices.Contains(a.cfg.CORSOrigins, origin)
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// Initialize Database
	base, err := sqlstore.New(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer base.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(cfg.SubscriberBuffer)
	go hub.Run(ctx)

	a := newApp(cfg, base, hub)
	if cfg.SessionIdle > 0 {
		go a.sessions.Manager.Expire(ctx, cfg.SessionIdle, time.Minute)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Println("Starting server on", cfg.Addr, "driver:", cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
