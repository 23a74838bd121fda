package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/store"
)

func testConfig(t *testing.T) Config {
	mr := miniredis.RunT(t)

	c := DefaultConfig()
	c.Log.Level = "error"
	c.Store.Driver = store.DriverMemory
	c.Redis.Leaderboard.Addrs = []string{mr.Addr()}
	c.Redis.Pubsub.Addrs = []string{mr.Addr()}
	c.Redis.Pubsub.Enabled = true
	return c
}

func TestInit(t *testing.T) {
	s, err := Init(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	tests := map[string]struct {
		handler http.Handler
		method  string
		path    string
		body    string
		want    int
	}{
		"healthz":             {handler: s.http.Handler, method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		"metrics":             {handler: s.http.Handler, method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		"pprof":               {handler: s.http.Handler, method: http.MethodGet, path: "/debug/pprof/", want: http.StatusOK},
		"create quiz":         {handler: s.http.Handler, method: http.MethodPost, path: "/quizzes", body: `{"name":"Capitals"}`, want: http.StatusCreated},
		"ws needs an upgrade": {handler: s.ws.Handler, method: http.MethodGet, path: "/", want: http.StatusBadRequest},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			tt.handler.ServeHTTP(w, r)
			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestInit_CORS(t *testing.T) {
	s, err := Init(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	r := httptest.NewRequest(http.MethodOptions, "/quizzes", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(w, r)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestInit_InvalidConfig(t *testing.T) {
	tests := map[string]func(c *Config){
		"unknown broadcast scope": func(c *Config) { c.WS.BroadcastScope = "room" },
		"unknown store driver":    func(c *Config) { c.Store.Driver = "sqlite" },
		"unknown log format":      func(c *Config) { c.Log.Format = "xml" },
		"redis is down":           func(c *Config) { c.Redis.Leaderboard.Addrs = []string{"127.0.0.1:1"} },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := testConfig(t)
			mutate(&c)

			_, err := Init(c)
			require.Error(t, err)
		})
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("WS_BROADCASTSCOPE", "all")
	t.Setenv("REDIS_LEADERBOARD_TTL", "30s")
	t.Setenv("STORE_DRIVER", "mysql")

	c := DefaultConfig()
	require.NoError(t, config.Load("", &c))

	require.Equal(t, "all", c.WS.BroadcastScope)
	require.Equal(t, "30s", c.Redis.Leaderboard.TTL.String())
	require.Equal(t, store.DriverMySQL, c.Store.Driver)
	require.EqualValues(t, 8080, c.HTTP.Port)
	require.Equal(t, []string{"localhost:6379"}, c.Redis.Leaderboard.Addrs)
}

func TestDefaultConfig_File(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, config.Load("../../config.example.yaml", &c))

	require.Equal(t, store.DriverPostgres, c.Store.Driver)
	require.Equal(t, "quiz", c.WS.BroadcastScope)
	require.True(t, c.Redis.Pubsub.Enabled)
	require.Equal(t, "10s", c.Redis.Leaderboard.TTL.String())
}
