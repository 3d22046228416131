package main

import (
	"cardstudio/config"
	"cardstudio/core"
	"cardstudio/handlers/api/designs"
	"cardstudio/handlers/api/invitations"
	"cardstudio/handlers/api/locale"
	"cardstudio/handlers/api/organizations"
	"cardstudio/handlers/api/payments"
	"cardstudio/handlers/api/textvars"
	"cardstudio/handlers/auth"
	"cardstudio/handlers/websocket"
	"cardstudio/i18n"
	"cardstudio/mailer"
	"cardstudio/metrics"
	appMiddleware "cardstudio/middleware"
	"cardstudio/payment"
	"cardstudio/stores"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"golang.org/x/time/rate"
)

type server struct {
	cfg        config.Config
	store      stores.Store
	languages  *i18n.Store
	invitation *invitations.Handler
	payments   *payment.Service
	viewLimit  *appMiddleware.RateLimiter
}

func newMailer(cfg config.Config) *mailer.InvitationMailer {
	var client mailer.EmailClient = mailer.LogClient{}
	if cfg.Mail.SendGridAPIKey != "" {
		client = mailer.NewSendGridClient(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName)
	} else {
		logrus.Warn("SENDGRID_API_KEY not set, invitations are only logged")
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Mail.PerSecond), cfg.Mail.Burst)
	return mailer.NewInvitationMailer(client, cfg.Mail.From, cfg.PublicBaseURL, limiter)
}

func newPayments(cfg config.Config) *payment.Service {
	if cfg.StripeSecretKey == "" {
		logrus.Warn("STRIPE_SECRET_KEY not set, payments are disabled")
		return payment.NewService(nil)
	}
	return payment.NewService(payment.NewStripeProvider(cfg.StripeSecretKey))
}

func (s *server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Language"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(metrics.Middleware)
	r.Use(appMiddleware.Locale(s.languages))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AuthJWT)
			r.Get("/me", auth.HandleMe(appMiddleware.Claims))

			r.Route("/designs", func(r chi.Router) {
				r.Get("/", designs.HandleList(s.store))
				r.Post("/", designs.HandleCreate(s.store))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", designs.HandleGet(s.store))
					r.Put("/", designs.HandleSave(s.store))
					r.Delete("/", designs.HandleDelete(s.store))
					r.Post("/items", designs.HandleAddItem(s.store))
					r.Post("/text", designs.HandleAddText(s.store))
					r.Patch("/items/{itemId}", designs.HandlePatchItem(s.store))
					r.Get("/items/{itemId}/filter", designs.HandleFilter(s.store))
					r.Put("/selection", designs.HandleSelect(s.store))
					r.Delete("/selection/item", designs.HandleRemoveSelected(s.store))
					r.Put("/background", designs.HandleSetBackground(s.store))
				})
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", s.invitation.HandleList)
				r.Post("/send", s.invitation.HandleSend)
				r.Post("/send-bulk", s.invitation.HandleSendBulk)
			})

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", organizations.HandleList(s.store))
				r.Post("/", organizations.HandleCreate(s.store))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", organizations.HandleGet(s.store))
					r.Put("/", organizations.HandleUpdate(s.store))
					r.Delete("/", organizations.HandleDelete(s.store))
				})
			})

			r.Post("/payments/intents", payments.HandleCreateIntent(s.payments))

			// The language is process-wide and persisted, so only signed-in users change it.
			r.Put("/locale", locale.HandleSet(s.languages))
		})

		// Public routes
		r.Get("/payments/plans", payments.HandlePlans())
		r.With(s.viewLimit.Handler).Get("/invitations/{token}", s.invitation.HandleView)
		r.Route("/textvars", func(r chi.Router) {
			r.Get("/", textvars.HandleCatalog())
			r.Post("/render", textvars.HandleRender())
		})
		r.Get("/locale", locale.HandleGet(s.languages))
	})

	r.Get("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		type room struct {
			ID      string `json:"id"`
			Viewers int    `json:"viewers"`
		}
		rooms := make([]room, 0)
		for id, count := range websocket.GetActiveRooms() {
			rooms = append(rooms, room{ID: id, Viewers: count})
		}
		sort.Slice(rooms, func(i, j int) bool {
			if rooms[i].Viewers == rooms[j].Viewers {
				return rooms[i].ID < rooms[j].ID
			}
			return rooms[i].Viewers > rooms[j].Viewers
		})
		render.JSON(w, r, rooms)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	if s.cfg.MetricsUser != "" {
		r.Handle("/metrics", metrics.BasicAuth(s.cfg.MetricsUser, s.cfg.MetricsPassword, promhttp.Handler()))
	} else {
		logrus.Warn("METRICS_USER not set, /metrics is disabled")
	}

	return r
}

func waitForShutdown(ctx context.Context, httpServer *http.Server, ioo *socketio.Server, store stores.Store, deadline time.Duration) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	ioo.Close(nil)

	switch c := store.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	case interface{ Close() }:
		c.Close()
	}
}

func printToken(subject string) {
	token, err := auth.CreateJWT(&core.User{Subject: subject, Login: subject}, auth.DefaultTokenTTL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create token")
	}
	fmt.Println(token)
}

func main() {
	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	tokenFor := flag.String("token", "", "Print a signed token for this user id and exit (development).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	config.LoadDotEnv()
	cfg := config.Load()
	auth.InitAuth(cfg.JWTSecret)

	if *tokenFor != "" {
		printToken(*tokenFor)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Register(prometheus.DefaultRegisterer)
	store := stores.GetStore(ctx, cfg.Storage)

	viewLimit := appMiddleware.NewRateLimiter(rate.Limit(float64(cfg.ViewRatePerMin)/60), cfg.ViewRatePerMin)
	go viewLimit.Cleanup(ctx, 10*time.Minute)

	s := &server{
		cfg:       cfg,
		store:     store,
		languages: i18n.NewStore(i18n.FilePersister{Path: cfg.LocaleFile}, os.Getenv("LANG")),
		invitation: &invitations.Handler{
			Store:  store,
			Sender: newMailer(cfg),
			TTL:    cfg.InvitationTTL,
		},
		payments:  newPayments(cfg),
		viewLimit: viewLimit,
	}

	r := s.router()
	ioo := websocket.SetupSocketIO(cfg.AllowedOrigins)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	httpServer := &http.Server{Addr: *listenAddress, Handler: r}
	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ctx, httpServer, ioo, store, cfg.ShutdownDeadline)
}
