package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/gameserver/config"
	"github.com/cyberinferno/gameserver/respcache"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists the routes the server answers",
	RunE:  RoutesCommand,
}

// RoutesCommand prints every registered route with its wire codes.
func RoutesCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(ConfigFlag)
	if err != nil {
		return err
	}

	// Listing only needs to know which routes are cached, not a live store.
	var store respcache.Store
	if cfg.Cache.Backend != "" && cfg.Cache.Backend != respcache.BackendNone {
		store = respcache.NewMemoryStore(cfg.Cache.TTL, 0)
		defer store.Close()
	}

	registry, err := buildRegistry(cfg, store)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tCATEGORY\tACTION\tCACHED")
	for _, route := range registry.Routes() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", route, route.Category, route.Action, registry.IsCached(route))
	}

	return w.Flush()
}
