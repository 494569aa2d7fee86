// Command demo walks through every event operation against the configured engine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/eventsearch/mcp-server/internal/config"
	"github.com/eventsearch/mcp-server/internal/connection"
	"github.com/eventsearch/mcp-server/internal/event"
	"github.com/eventsearch/mcp-server/internal/logging"
	"github.com/eventsearch/mcp-server/internal/service"
	"go.uber.org/zap"
)

func sampleEvents() (e1, e2, e3, e4 event.Event) {
	e1 = event.New("1",
		event.WithTitle("Spring tutorial"),
		event.WithCategory(event.Workshop),
		event.WithPlace("Zoom"),
		event.WithDescription("Spring boot tutorial"),
		event.WithSubTopics("Java", "Spring"),
	)
	e2 = event.New("2",
		event.WithTitle("Ruby tutorial"),
		event.WithCategory(event.TechTalk),
		event.WithPlace("Lviv"),
		event.WithDescription("Ruby tutorial"),
		event.WithSubTopics("Ruby", "Js"),
	)
	e3 = event.New("3",
		event.WithTitle("React tutorial"),
		event.WithCategory(event.Workshop),
		event.WithPlace("Teams"),
		event.WithDescription("React tutorial"),
		event.WithSubTopics("React", "Web"),
	)
	e4 = event.New("4",
		event.WithTitle("React Native tutorial"),
		event.WithCategory(event.Workshop),
		event.WithPlace("Teams"),
		event.WithDescription("React tutorial"),
		event.WithSubTopics("React", "Web"),
	)
	return
}

func printEvent(out io.Writer, e *event.Event) {
	if e == nil {
		fmt.Fprintln(out, "<nil>")
		return
	}
	fmt.Fprintln(out, e)
}

// run executes the fixed demonstration sequence
func run(ctx context.Context, out io.Writer, svc *service.EventSearchService) {
	e1, e2, e3, e4 := sampleEvents()

	svc.CreateIndex(ctx, "test-events")
	fmt.Fprintln(out, svc.CheckIfIndexExist(ctx, "test-events"))
	svc.EnsureEventsIndex(ctx)

	svc.InsertEvents(ctx, []event.Event{e1, e2, e3})
	svc.InsertEvent(ctx, e4)
	fmt.Fprintln(out, svc.GetAllEvents(ctx))
	printEvent(out, svc.GetEventByID(ctx, "2"))

	svc.UpdateEvent(ctx, "2", e2)
	printEvent(out, svc.GetEventByID(ctx, "2"))

	svc.DeleteEvent(ctx, "1")
	svc.DeleteEventByTerm(ctx, event.FieldPlace, "Zoom")
	fmt.Fprintln(out, svc.CountEventsByTerm(ctx, event.FieldTitle, "React Native tutorial"))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.Logging())
	defer logger.Sync()

	if err := connection.Init(cfg.EngineFactory(logger)); err != nil {
		logger.Fatal("failed to configure connection", zap.Error(err))
	}

	ctx := context.Background()
	e, err := connection.GetConnection(ctx)
	if err != nil {
		logger.Error("failed to connect", zap.Error(err))
		return
	}

	// Elasticsearch searches only see writes after a refresh; EVENTS_ES_REFRESH=true forces one per write
	svc := service.NewEventSearchService(e, service.WithIndex(cfg.Index), service.WithLogger(logger))
	run(ctx, os.Stdout, svc)

	if err := connection.CloseConnection(); err != nil {
		logger.Warn("error closing connection", zap.Error(err))
	}
}
