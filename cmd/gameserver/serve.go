package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/gameserver/config"
	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/handlers/system"
	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/respcache"
	"github.com/cyberinferno/gameserver/server"
)

// ServeCommand runs the server until SIGINT or SIGTERM.
func ServeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(ConfigFlag)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	defer log.Close()

	store, err := respcache.New(cfg.CacheOptions())
	if err != nil {
		return fmt.Errorf("error creating response cache: %w", err)
	}
	if store != nil {
		defer store.Close()
		log.Info("response cache enabled",
			logger.Field{Key: "backend", Value: cfg.Cache.Backend},
			logger.Field{Key: "routes", Value: cfg.Cache.Routes},
		)
	}

	registry, err := buildRegistry(cfg, store)
	if err != nil {
		return err
	}

	srv := server.New(cfg.ServerOptions(), registry, log)
	if err := srv.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.Info("waiting to shut down gracefully", logger.Field{Key: "signal", Value: sig.String()})

	go func() {
		<-c
		log.Warn("hard exiting (killed)")
		os.Exit(1)
	}()

	srv.Stop()
	return nil
}

// buildRegistry registers every request category handler. store may be nil,
// which disables response caching.
func buildRegistry(cfg *config.Config, store respcache.Store) (*dispatch.Registry, error) {
	var opts []dispatch.Option
	if store != nil {
		routes, err := cfg.CacheRoutes()
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithResponseCache(store, cfg.Cache.TTL, routes...))
	}

	registry := dispatch.NewRegistry(opts...)
	if err := registry.Register(protocol.RequestNone, system.New()); err != nil {
		return nil, fmt.Errorf("error registering %s handler: %w", protocol.RequestNone, err)
	}

	return registry, nil
}
