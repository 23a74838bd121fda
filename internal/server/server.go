package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/user"
	"github.com/victornm/livequiz/internal/ws"
)

type Config struct {
	Log struct {
		Level  string
		Format string
	}

	HTTP struct {
		Port int32
	}

	WS struct {
		Port           int32
		Path           string
		BroadcastScope string
		ReadLimit      int64
		SendBuffer     int
		RateLimit      float64
		RateBurst      int
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Enabled bool
			Addrs   []string
			Pass    string
			Prefix  string
		}
	}

	Store store.Config

	EventBus struct {
		PoolSize int
		Timeout  time.Duration
	}
}

// DefaultConfig runs everything on localhost with the ports of the reference deployment.
func DefaultConfig() Config {
	var c Config

	c.Log.Level = "info"
	c.Log.Format = telemetry.LogFormatJSON

	c.HTTP.Port = 8080
	c.WS.Port = 8081
	c.WS.Path = "/"
	c.WS.BroadcastScope = ws.ScopeQuiz
	c.GRPC.Port = 9090

	c.Redis.Leaderboard.Addrs = []string{"localhost:6379"}
	c.Redis.Leaderboard.Prefix = "livequiz"
	c.Redis.Leaderboard.TTL = leaderboard.DefaultTTL
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "livequiz"

	c.Store.Driver = store.DriverPostgres
	c.Store.Postgres.Addr = "localhost:5432"
	c.Store.Postgres.User = "postgres"
	c.Store.Postgres.Pass = "postgres"
	c.Store.Postgres.Name = "livequiz"
	c.Store.MySQL.Addr = "localhost:3306"
	c.Store.MySQL.User = "root"
	c.Store.MySQL.Name = "livequiz"
	c.Store.Migrate = true

	c.EventBus.PoolSize = 1000
	c.EventBus.Timeout = 10 * time.Second

	return c
}

type Server struct {
	c Config

	eb  *event.Bus
	hub *ws.Hub

	infra struct {
		store store.Store

		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}
	}

	service struct {
		quiz        *quiz.Service
		user        *user.Service
		leaderboard *leaderboard.Service
		score       *score.Service
	}

	http   *http.Server
	ws     *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if err := telemetry.SetupLogger(os.Stdout, c.Log.Level, c.Log.Format); err != nil {
		return nil, fmt.Errorf("server: setup logger: %w", err)
	}

	s.eb = event.NewBus(
		event.WithPoolSize(c.EventBus.PoolSize),
		event.WithTimeout(c.EventBus.Timeout),
	)

	hub, err := ws.NewHub(c.WS.BroadcastScope)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.hub = hub

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	if !s.c.Redis.Pubsub.Enabled {
		return nil
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.infra.store, err = store.Open(ctx, s.c.Store)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "server: store ready", "driver", s.c.Store.Driver)
	return nil
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewService(quiz.Config{
		Store: s.infra.store,
	})

	s.service.user = user.NewService(user.Config{
		Store: s.infra.store,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:  s.infra.store,
		Redis:  s.infra.redis.leaderboard,
		Prefix: s.c.Redis.Leaderboard.Prefix,
		TTL:    s.c.Redis.Leaderboard.TTL,
	})

	s.service.score = score.NewService(score.Config{
		EventBus:    s.eb,
		Store:       s.infra.store,
		Questions:   s.service.quiz,
		Leaderboard: s.service.leaderboard,
		Broadcaster: s.hub,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinMetrics())

	c := api.Config{
		Router:       e,
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		User:         s.service.user,
		Leaderboard:  s.service.leaderboard,
		Health:       s.infra.store,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           cors.AllowAll().Handler(e),
		ReadHeaderTimeout: 60 * time.Second,
	}

	we := gin.New()
	we.Use(gin.Recovery())
	we.GET(s.c.WS.Path, ws.NewHandler(ws.Config{
		Hub:        s.hub,
		Scorer:     s.service.score,
		ReadLimit:  s.c.WS.ReadLimit,
		SendBuffer: s.c.WS.SendBuffer,
		RateLimit:  s.c.WS.RateLimit,
		RateBurst:  s.c.WS.RateBurst,
	}).Serve)

	s.ws = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.WS.Port),
		Handler:           we,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: WebSocket listening on port %d", s.c.WS.Port))
		if err := s.ws.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Hijacked websocket connections are not tracked by the http server, the hub closes them.
	if err := s.ws.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown WebSocket failed", "error", err)
	}
	s.hub.Close()

	s.eb.Stop()

	if err := s.infra.store.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close store failed", "error", err)
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
