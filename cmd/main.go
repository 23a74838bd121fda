// Command livequiz serves the quiz REST API, the WebSocket scoring channel and the gRPC health service.
//
// Settings come from the defaults of server.DefaultConfig, then the YAML file given by --config
// (or CONFIG_PATH), then environment variables such as WS_BROADCASTSCOPE. Run cmd/seed against the
// same configuration to create the schema and the sample quiz before the first start.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/server"
)

func main() {
	path := pflag.String("config", os.Getenv("CONFIG_PATH"), "YAML config file, see config.example.yaml")
	pflag.Parse()

	c, err := loadConfig(*path)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}
	slog.Info("livequiz: starting",
		"config", *path,
		"store", c.Store.Driver,
		"broadcast_scope", c.WS.BroadcastScope,
		"pubsub", c.Redis.Pubsub.Enabled,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	go s.Start()

	sig := <-shutdown
	slog.Info("livequiz: stopping", "signal", sig.String())
	s.Shutdown()
}

// loadConfig layers the file, when path is set, and the environment over the defaults.
func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config %q: %w", path, err)
	}

	return c, nil
}
