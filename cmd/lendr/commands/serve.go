package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/slok/lendr/internal/api"
	"github.com/slok/lendr/internal/conventions"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/pkg/lib"
)

// ServeCommand serves the HTTP API.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	address      string
	syncInterval time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the library HTTP API and the metrics.")
	c.Cmd.Flag("address", "Listen address.").Default(conventions.DefaultAPIAddress).StringVar(&c.address)
	c.Cmd.Flag("sync-interval", "Interval between syncs of the current profile accounts, 0 disables them.").Default("0").DurationVar(&c.syncInterval)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := c.rootCmd.newClient(ctx, reg)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	handler, err := api.New(api.Config{
		Controller: client,
		Gatherer:   reg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create api: %w", err)
	}

	var g run.Group

	// HTTP server.
	{
		server := &http.Server{
			Addr:              c.address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				logger.Infof("Listening on %s", c.address)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			},
		)
	}

	// Periodic sync.
	if c.syncInterval > 0 {
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				t := time.NewTicker(c.syncInterval)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-t.C:
						c.syncAll(ctx, client)
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Command context.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func (c ServeCommand) syncAll(ctx context.Context, client *lib.Client) {
	ids, err := syncableAccounts(ctx, client)
	if err != nil {
		c.rootCmd.Logger.Errorf("Could not get accounts to sync: %s", err)
		return
	}

	for _, id := range ids {
		res, err := client.BooksSync(ctx, id).Get(ctx)
		if err != nil {
			c.rootCmd.Logger.Warningf("Account %s sync not run: %s", id, err)
			return
		}
		if terr, ok := res.LastError(); ok && res.Failed() {
			c.rootCmd.Logger.WithValues(log.Kv{"account-id": id}).Warningf("Periodic sync failed: %s", terr)
		}
	}
}
