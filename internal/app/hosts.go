package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// HostPage is the public page of a host: the profile and its bookable
// event types.
type HostPage struct {
	Host       Host        `json:"host"`
	EventTypes []EventType `json:"event_types"`
}

func (a *App) GetProfile(ctx context.Context, hostID string) (*Host, error) {
	return a.Store.GetHostByID(ctx, hostID)
}

// SaveProfile creates or updates the profile of hostID.
func (a *App) SaveProfile(ctx context.Context, hostID string, in ProfileInput) (*Host, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Bio = strings.TrimSpace(in.Bio)
	if err := check(in, profileMessages); err != nil {
		return nil, err
	}

	h := &Host{ID: hostID}
	if prev, err := a.Store.GetHostByID(ctx, hostID); err == nil {
		h = prev
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	h.Name = in.Name
	h.Email = strings.TrimSpace(in.Email)
	h.Slug = in.Slug
	h.Bio = in.Bio
	h.Timezone = in.Timezone
	h.BusyFeedURL = strings.TrimSpace(in.BusyFeedURL)

	if err := a.Store.SaveHost(ctx, h); err != nil {
		return nil, err
	}
	a.logger().Info("profile saved", zap.String("host_id", hostID), zap.String("slug", h.Slug))
	return h, nil
}

// GetHostPage returns the host with its active event types.
func (a *App) GetHostPage(ctx context.Context, slug string) (*HostPage, error) {
	host, err := a.Store.GetHostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	all, err := a.Store.ListEventTypes(ctx, host.ID)
	if err != nil {
		return nil, err
	}
	page := &HostPage{Host: *host, EventTypes: []EventType{}}
	for _, et := range all {
		if et.IsActive {
			page.EventTypes = append(page.EventTypes, et)
		}
	}
	// the feed URL may carry a private token
	page.Host.BusyFeedURL = ""
	return page, nil
}
