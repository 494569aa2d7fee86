package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eventsearch/mcp-server/internal/config"
	"github.com/eventsearch/mcp-server/internal/connection"
	"github.com/eventsearch/mcp-server/internal/event"
	"github.com/eventsearch/mcp-server/internal/logging"
	"github.com/eventsearch/mcp-server/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type loadOptions struct {
	engine  string
	index   string
	dataDir string
}

func newLoadCmd() *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load <events.json>",
		Short: "Bulk-load a JSON array of events",
		Long: `Read a JSON array of event documents, validate each one against the
event schema, create the events index if needed and write all valid events
with a single bulk request. Invalid documents are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.engine, "engine", "", "Engine to use: elasticsearch or embedded (default from EVENTS_ENGINE)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Target index (default from EVENTS_INDEX)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory of the embedded engine (default from EVENTS_DATA_DIR)")

	return cmd
}

// readEvents parses a JSON array of events, splitting valid from invalid documents
func readEvents(r io.Reader) ([]event.Event, []*event.ValidationError, error) {
	var docs []json.RawMessage
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, nil, fmt.Errorf("expected a JSON array of events: %w", err)
	}

	var (
		valid   []event.Event
		invalid []*event.ValidationError
	)
	for _, doc := range docs {
		if err := event.Validate(doc); err != nil {
			var verr *event.ValidationError
			if !errors.As(err, &verr) {
				return nil, nil, err
			}
			invalid = append(invalid, verr)
			continue
		}
		e, err := event.Decode(doc)
		if err != nil {
			return nil, nil, err
		}
		valid = append(valid, e)
	}
	return valid, invalid, nil
}

func (o loadOptions) apply(cfg *config.Config) error {
	if o.engine != "" {
		cfg.Engine = o.engine
	}
	if o.index != "" {
		cfg.Index = o.index
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	return cfg.Validate()
}

func runLoad(ctx context.Context, out io.Writer, path string, opts loadOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	logger := logging.Must(cfg.Logging())
	defer logger.Sync()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	events, invalid, err := readEvents(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, verr := range invalid {
		fmt.Fprintf(out, "skipped: %v\n", verr)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "no valid events to load")
		return nil
	}

	holder := connection.NewHolder(cfg.EngineFactory(logger))
	e, err := holder.Get(ctx)
	if err != nil {
		return err
	}
	defer holder.Close()

	svc := service.NewEventSearchService(e, service.WithIndex(cfg.Index), service.WithLogger(logger))
	svc.EnsureEventsIndex(ctx)
	stored := svc.InsertEvents(ctx, events)

	logger.Info("load finished", zap.String("file", path), zap.Int("read", len(events)+len(invalid)),
		zap.Int("stored", len(stored)))
	fmt.Fprintf(out, "stored %d of %d events in %s\n", len(stored), len(events)+len(invalid), cfg.Index)
	return nil
}
