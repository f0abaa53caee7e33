package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/limiter"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
	"marketchat/internal/pkg/resp"
)

const (
	LoginRate  = 0.2
	LoginBurst = 5
	WSRate     = 0.5
	WSBurst    = 10

	// WebSocketPath is the connection endpoint owned by the HandshakeAuthenticator.
	WebSocketPath = "/ws"

	readyTimeout = 2 * time.Second
)

// PublicPaths are reachable without a credential.
var PublicPaths = auth.PublicPaths{
	"/health",
	"/ready",
	"/metrics",
	"/api/auth/login",
	"/api/auth/signup",
	"/api/auth/refresh",
	"/api/auth/pow/**",
}

// Limiters are the per-IP limiters of the router. Start them with the server context.
type Limiters struct {
	Login     *limiter.IPRateLimiter
	WebSocket *limiter.IPRateLimiter
}

// NewLimiters creates the default limiters.
func NewLimiters() Limiters {
	return Limiters{
		Login:     limiter.NewIPRateLimiter("login", rate.Limit(LoginRate), LoginBurst),
		WebSocket: limiter.NewIPRateLimiter("handshake", rate.Limit(WSRate), WSBurst),
	}
}

// Start runs the cleanup loops of every limiter until ctx is done.
func (l Limiters) Start(ctx context.Context) {
	l.Login.Start(ctx)
	l.WebSocket.Start(ctx)
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// Every route other than PublicPaths passes the EdgeFilter before reaching its handler.
func Router(deps *AppDeps, limiters Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	edge := auth.NewEdgeFilter(deps.Verifier, PublicPaths, WebSocketPath)
	r.Use(edge.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":   "ok",
			"service":  "marketchat",
			"instance": deps.Config.InstanceID,
		})
	})
	r.Get("/ready", HandleReady(deps))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Get("/pow/challenge", HandlePowChallenge(deps))
			a.Post("/pow/verify", HandlePowVerify(deps))
			a.Post("/signup", HandleSignup(deps))
			a.With(limiters.Login.Middleware).Post("/login", HandleLogin(deps))
			a.Post("/refresh", HandleRefresh(deps))
			a.Post("/logout", HandleLogout(deps))
		})

		api.Route("/users/me", func(u chi.Router) {
			u.Get("/", HandleGetMe(deps))
			u.Post("/withdrawal", HandleWithdrawal(deps))
		})

		api.Route("/chat/rooms", func(rooms chi.Router) {
			rooms.Post("/", HandleCreateRoom(deps))
			rooms.Get("/", HandleListRooms(deps))

			rooms.Route("/{roomID}", func(room chi.Router) {
				room.Get("/messages", HandleHistory(deps))
				room.Post("/messages", HandleSendMessage(deps))
				room.Put("/messages/read", HandleMarkRead(deps))

				room.Group(func(files chi.Router) {
					files.Use(requireAttachments(deps))
					files.Post("/files/presign-upload", HandlePresignUploadURL(deps))
					files.Get("/files/presign-download", HandlePresignDownloadURL(deps))
				})
			})
		})

		api.Route("/location/rooms/{roomID}", func(loc chi.Router) {
			loc.Get("/recent", HandleRecentLocations(deps))
			loc.Post("/", HandlePostLocation(deps))
			loc.Get("/users/{userID}/last", HandleLastLocation(deps))
		})

		api.With(auth.RequireRole(auth.RoleAdmin)).Post("/notifications", HandleSendNotification(deps))
	})

	r.Get(WebSocketPath, HandleWebSocket(deps, wsUpgrader, limiters.WebSocket))

	return r
}

// requireAttachments answers 404 when no object storage is configured.
func requireAttachments(deps *AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.StorageService == nil {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleReady reports whether the database and the bus are reachable.
func HandleReady(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "bus": "ok"}
		ready := true

		if deps.Database != nil {
			if err := deps.Database.Ping(ctx); err != nil {
				checks["database"] = err.Error()
				ready = false
			}
		}
		if deps.Bus != nil {
			if err := deps.Bus.Ping(ctx); err != nil {
				checks["bus"] = err.Error()
				ready = false
			}
		}

		if !ready {
			resp.RespondJSON(w, r, http.StatusServiceUnavailable, resp.JSONResponse{
				Code:    errs.ErrUnknown,
				Message: "not ready",
				Data:    checks,
			})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"checks":      checks,
			"connections": deps.Hub.Connections(),
		})
	}
}
