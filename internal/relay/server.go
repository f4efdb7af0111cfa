package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"pellicule/internal/observability"
	"pellicule/internal/realtime"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

const localsUserID = "userID"

// Config configures the relay server.
type Config struct {
	Port string
	// JWTSecret enables bearer-token authentication when non-empty.
	JWTSecret string
	// AllowedOrigins is a comma-separated origin list, "*" for any.
	AllowedOrigins string
	// Metrics exposes /metrics when true.
	Metrics bool
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// metricsMiddleware returns the process-wide fiberprometheus instance; its
// collectors can only be registered once.
func metricsMiddleware() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("pellicule-relay")
	})
	return prom
}

// Server is the relay HTTP and websocket front end.
type Server struct {
	cfg    Config
	hub    *Hub
	fanout *Fanout
	app    *fiber.App
	log    *observability.Logger
}

// NewServer builds the fiber app. fanout may be nil for a single instance.
func NewServer(cfg Config, hub *Hub, fanout *Fanout, l *observability.Logger) *Server {
	if l == nil {
		l = observability.GlobalLogger
	}
	s := &Server{cfg: cfg, hub: hub, fanout: fanout, log: l}

	app := fiber.New(fiber.Config{
		AppName:               "pellicule relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	origins := cfg.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if cfg.Metrics {
		p := metricsMiddleware()
		p.RegisterAt(app, "/metrics")
		app.Use(p.Middleware)
	}
	s.SetupRoutes(app)
	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// SetupRoutes registers the relay routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/healthz", s.Health)
	app.Get("/ws", s.upgradeRequired, s.AuthRequired, s.WebSocketHandler())
}

// Health reports liveness and the number of connected clients.
func (s *Server) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"service":     "pellicule-relay",
		"connections": s.hub.Count(),
	})
}

func (s *Server) upgradeRequired(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// AuthRequired validates the bearer token when a secret is configured and
// stores its subject for the websocket handler.
func (s *Server) AuthRequired(c *fiber.Ctx) error {
	if s.cfg.JWTSecret == "" {
		c.Locals(localsUserID, "")
		return c.Next()
	}

	tokenString := ""
	if parts := strings.Split(c.Get(fiber.HeaderAuthorization), " "); len(parts) == 2 && parts[0] == "Bearer" {
		tokenString = parts[1]
	}
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token required"})
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token structure - missing subject"})
	}
	c.Locals(localsUserID, sub)
	return c.Next()
}

// WebSocketHandler relays validated events between connected clients.
func (s *Server) WebSocketHandler() fiber.Handler {
	var cfg websocket.Config
	if s.cfg.AllowedOrigins != "" && s.cfg.AllowedOrigins != "*" {
		for _, o := range strings.Split(s.cfg.AllowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Origins = append(cfg.Origins, o)
			}
		}
	}

	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(localsUserID).(string)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			s.hub.log.LogError(context.Background(), "register", err)
			reject(conn, err.Error())
			return
		}
		s.hub.log.LogConnect(client.Context(), conn.RemoteAddr().String())

		client.Serve(s.relay)
		s.hub.log.LogDisconnect(client.Context(), "client closed")
	}, cfg)
}

// relay forwards one decoded frame to local clients and to other instances.
func (s *Server) relay(from *Client, msg realtime.Message, raw []byte) {
	span, ctx := observability.StartRelaySpan(from.Context(), string(msg.Event.Kind()), msg.ID)
	defer span.End()

	if s.cfg.JWTSecret != "" {
		if actor := realtime.UserOf(msg.Event); actor != "" && actor != from.UserID {
			observability.RecordDrop("forbidden")
			err := fmt.Errorf("event user %s does not match token subject %s", actor, from.UserID)
			span.SetError(err)
			s.hub.log.LogDrop(ctx, "forbidden", err)
			return
		}
	}
	observability.RecordEvent(string(msg.Event.Kind()), "relayed")
	s.hub.log.LogEvent(ctx, "in", string(msg.Event.Kind()), msg.ID)

	s.hub.Broadcast(from, raw)
	if err := s.fanout.Publish(ctx, raw); err != nil {
		span.SetError(err)
		s.hub.log.LogError(ctx, "fanout", err)
	}
}

// Start wires the fanout and serves on ln, or on the configured port when ln is nil.
// It blocks until the server stops. The fanout subscription lives until ctx is done.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	if err := s.fanout.Start(ctx, func(event []byte) { s.hub.Broadcast(nil, event) }); err != nil {
		return err
	}

	var err error
	if ln != nil {
		s.log.Info("relay listening", "addr", ln.Addr().String(), "auth", s.cfg.JWTSecret != "")
		err = s.app.Listener(ln)
	} else {
		s.log.Info("relay listening", "port", s.cfg.Port, "auth", s.cfg.JWTSecret != "")
		err = s.app.Listen(":" + s.cfg.Port)
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Shutdown closes every client and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.hub.Shutdown(ctx); err != nil {
		return err
	}
	return s.app.ShutdownWithContext(ctx)
}
