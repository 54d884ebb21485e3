package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultEventColor = "#3b82f6"

func normalizeEventType(in *EventTypeInput) {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Description = strings.TrimSpace(in.Description)
	if in.Color == "" {
		in.Color = defaultEventColor
	}
}

func (a *App) ListEventTypes(ctx context.Context, hostID string) ([]EventType, error) {
	out, err := a.Store.ListEventTypes(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []EventType{}
	}
	return out, nil
}

// ownedEventType loads id and hides event types of other hosts.
func (a *App) ownedEventType(ctx context.Context, hostID, id string) (*EventType, error) {
	et, err := a.Store.GetEventType(ctx, id)
	if err != nil {
		return nil, err
	}
	if et.HostID != hostID {
		return nil, notFound("event type", id)
	}
	return et, nil
}

func (a *App) GetEventType(ctx context.Context, hostID, id string) (*EventType, error) {
	return a.ownedEventType(ctx, hostID, id)
}

func (a *App) CreateEventType(ctx context.Context, hostID string, in EventTypeInput) (*EventType, error) {
	normalizeEventType(&in)
	if err := check(in, eventTypeMessages); err != nil {
		return nil, err
	}
	if _, err := a.Store.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}
	et := &EventType{
		ID:           uuid.NewString(),
		HostID:       hostID,
		Title:        in.Title,
		Slug:         in.Slug,
		Description:  in.Description,
		Duration:     in.Duration,
		BufferBefore: in.BufferBefore,
		BufferAfter:  in.BufferAfter,
		IsActive:     true,
		Color:        in.Color,
	}
	if err := a.Store.CreateEventType(ctx, et); err != nil {
		return nil, err
	}
	a.logger().Info("event type created", zap.String("host_id", hostID), zap.String("event_type_id", et.ID))
	return et, nil
}

func (a *App) UpdateEventType(ctx context.Context, hostID, id string, in EventTypeInput) (*EventType, error) {
	normalizeEventType(&in)
	if err := check(in, eventTypeMessages); err != nil {
		return nil, err
	}
	et, err := a.ownedEventType(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	et.Title = in.Title
	et.Slug = in.Slug
	et.Description = in.Description
	et.Duration = in.Duration
	et.BufferBefore = in.BufferBefore
	et.BufferAfter = in.BufferAfter
	et.Color = in.Color
	if err := a.Store.UpdateEventType(ctx, et); err != nil {
		return nil, err
	}
	return et, nil
}

// ToggleEventType flips whether guests can book the event type.
func (a *App) ToggleEventType(ctx context.Context, hostID, id string) (*EventType, error) {
	et, err := a.ownedEventType(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	et.IsActive = !et.IsActive
	if err := a.Store.UpdateEventType(ctx, et); err != nil {
		return nil, err
	}
	return et, nil
}

// DeleteEventType removes the event type together with its bookings.
func (a *App) DeleteEventType(ctx context.Context, hostID, id string) error {
	if _, err := a.ownedEventType(ctx, hostID, id); err != nil {
		return err
	}
	if err := a.Store.DeleteEventType(ctx, id); err != nil {
		return err
	}
	a.logger().Info("event type deleted", zap.String("host_id", hostID), zap.String("event_type_id", id))
	return nil
}

// PublicEventType returns an active event type by host and event slug.
func (a *App) PublicEventType(ctx context.Context, hostSlug, eventSlug string) (*EventType, *Host, error) {
	host, err := a.Store.GetHostBySlug(ctx, hostSlug)
	if err != nil {
		return nil, nil, err
	}
	et, err := a.Store.GetEventTypeBySlug(ctx, host.ID, eventSlug)
	if err != nil {
		return nil, nil, err
	}
	if !et.IsActive {
		return nil, nil, notFound("event type", eventSlug)
	}
	host.BusyFeedURL = ""
	return et, host, nil
}
