package calendar

import (
	"context"
	"fmt"
	"net/http"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleEvents talks to one calendar through the Calendar v3 API.
type GoogleEvents struct {
	srv        *gcal.Service
	calendarID string
}

func NewGoogleEvents(ctx context.Context, client *http.Client, calendarID string) (*GoogleEvents, error) {
	srv, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleEvents{srv: srv, calendarID: calendarID}, nil
}

func (g *GoogleEvents) FindByTask(ctx context.Context, taskID string) (*gcal.Event, error) {
	events, err := g.srv.Events.List(g.calendarID).
		PrivateExtendedProperty(TaskIDProperty + "=" + taskID).
		ShowDeleted(false).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) == 0 {
		return nil, nil
	}
	return events.Items[0], nil
}

func (g *GoogleEvents) Insert(ctx context.Context, event *gcal.Event) (*gcal.Event, error) {
	return g.srv.Events.Insert(g.calendarID, event).Context(ctx).Do()
}

func (g *GoogleEvents) Patch(ctx context.Context, eventID string, event *gcal.Event) (*gcal.Event, error) {
	return g.srv.Events.Patch(g.calendarID, eventID, event).Context(ctx).Do()
}
