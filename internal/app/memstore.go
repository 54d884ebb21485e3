package app

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// MemStore keeps everything in process memory. It backs STORE_DRIVER=memory
// and the tests.
type MemStore struct {
	mu           sync.RWMutex
	hosts        map[string]Host
	eventTypes   map[string]EventType
	availability map[string][]AvailabilityTemplate
	bookings     map[string]Booking
	tokens       map[string]oauth2.Token

	locksMu   sync.Mutex
	hostLocks map[string]*sync.Mutex
}

func NewMemStore() *MemStore {
	return &MemStore{
		hosts:        map[string]Host{},
		eventTypes:   map[string]EventType{},
		availability: map[string][]AvailabilityTemplate{},
		bookings:     map[string]Booking{},
		tokens:       map[string]oauth2.Token{},
		hostLocks:    map[string]*sync.Mutex{},
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) GetHostByID(_ context.Context, id string) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[id]
	if !ok {
		return nil, notFound("host", id)
	}
	return &h, nil
}

func (s *MemStore) GetHostBySlug(_ context.Context, slug string) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hosts {
		if h.Slug == slug {
			return &h, nil
		}
	}
	return nil, notFound("host", slug)
}

func (s *MemStore) SaveHost(_ context.Context, h *Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.hosts {
		if other.ID != h.ID && other.Slug == h.Slug {
			return ErrSlugTaken
		}
	}
	now := time.Now().UTC()
	if prev, ok := s.hosts[h.ID]; ok {
		h.CreatedAt = prev.CreatedAt
	} else {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	s.hosts[h.ID] = *h
	return nil
}

func (s *MemStore) ListEventTypes(_ context.Context, hostID string) ([]EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EventType
	for _, et := range s.eventTypes {
		if et.HostID == hostID {
			out = append(out, et)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) GetEventType(_ context.Context, id string) (*EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	et, ok := s.eventTypes[id]
	if !ok {
		return nil, notFound("event type", id)
	}
	return &et, nil
}

func (s *MemStore) GetEventTypeBySlug(_ context.Context, hostID, slug string) (*EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, et := range s.eventTypes {
		if et.HostID == hostID && et.Slug == slug {
			return &et, nil
		}
	}
	return nil, notFound("event type", slug)
}

func (s *MemStore) slugTakenLocked(et *EventType) bool {
	for _, other := range s.eventTypes {
		if other.ID != et.ID && other.HostID == et.HostID && other.Slug == et.Slug {
			return true
		}
	}
	return false
}

func (s *MemStore) CreateEventType(_ context.Context, et *EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTakenLocked(et) {
		return ErrSlugTaken
	}
	now := time.Now().UTC()
	// keep creation order strict for the newest-first listing
	for _, other := range s.eventTypes {
		if other.HostID == et.HostID && !now.After(other.CreatedAt) {
			now = other.CreatedAt.Add(time.Microsecond)
		}
	}
	et.CreatedAt, et.UpdatedAt = now, now
	s.eventTypes[et.ID] = *et
	return nil
}

func (s *MemStore) UpdateEventType(_ context.Context, et *EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.eventTypes[et.ID]
	if !ok {
		return notFound("event type", et.ID)
	}
	if s.slugTakenLocked(et) {
		return ErrSlugTaken
	}
	et.CreatedAt = prev.CreatedAt
	et.UpdatedAt = time.Now().UTC()
	s.eventTypes[et.ID] = *et
	return nil
}

func (s *MemStore) DeleteEventType(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventTypes[id]; !ok {
		return notFound("event type", id)
	}
	delete(s.eventTypes, id)
	for bid, b := range s.bookings {
		if b.EventTypeID == id {
			delete(s.bookings, bid)
		}
	}
	return nil
}

func (s *MemStore) ListAvailability(_ context.Context, hostID string) ([]AvailabilityTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.availability[hostID]), nil
}

func (s *MemStore) ReplaceAvailability(_ context.Context, hostID string, tmpl []AvailabilityTemplate) error {
	rows := make([]AvailabilityTemplate, len(tmpl))
	for i, t := range tmpl {
		t.HostID = hostID
		rows[i] = t
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DayOfWeek < rows[j].DayOfWeek })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[hostID] = rows
	return nil
}

func (s *MemStore) ListActiveBookings(_ context.Context, hostID string, from, to time.Time) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if b.HostID == hostID && b.Status != StatusCancelled &&
			!b.StartTime.Before(from) && b.StartTime.Before(to) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemStore) ListBookings(_ context.Context, hostID string, filter BookingFilter, now time.Time) ([]BookingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []BookingSummary
	for _, b := range s.bookings {
		if b.HostID != hostID {
			continue
		}
		switch filter {
		case FilterUpcoming:
			if b.StartTime.Before(now) || b.Status == StatusCancelled {
				continue
			}
		case FilterPast:
			if !b.StartTime.Before(now) {
				continue
			}
		}
		et := s.eventTypes[b.EventTypeID]
		out = append(out, BookingSummary{
			Booking:       b,
			EventTitle:    et.Title,
			EventDuration: et.Duration,
			EventColor:    et.Color,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if filter == FilterPast {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *MemStore) GetBooking(_ context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return &b, nil
}

func (s *MemStore) ListConfirmedStarting(_ context.Context, from, to time.Time) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if b.Status == StatusConfirmed && !b.StartTime.Before(from) && b.StartTime.Before(to) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemStore) CancelBooking(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return notFound("booking", id)
	}
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	b.Status = StatusCancelled
	b.CancelReason = reason
	s.bookings[id] = b
	return nil
}

func (s *MemStore) hostLock(hostID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.hostLocks[hostID]
	if !ok {
		l = &sync.Mutex{}
		s.hostLocks[hostID] = l
	}
	return l
}

func (s *MemStore) WithHostLock(ctx context.Context, hostID string, fn func(tx BookingTx) error) error {
	l := s.hostLock(hostID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range tx.pending {
		s.bookings[b.ID] = b
	}
	return nil
}

type memTx struct {
	store   *MemStore
	pending []Booking
}

func (t *memTx) FindOverlapping(_ context.Context, hostID string, start, end time.Time) (*Booking, error) {
	want := Interval{Start: start, End: end}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, b := range append(slices.Collect(maps.Values(t.store.bookings)), t.pending...) {
		if b.HostID != hostID || b.Status == StatusCancelled {
			continue
		}
		if want.Overlaps(Interval{Start: b.StartTime, End: b.EndTime}) {
			return &b, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *Booking) error {
	b.CreatedAt = time.Now().UTC()
	t.pending = append(t.pending, *b)
	return nil
}

func (s *MemStore) LoadToken(_ context.Context, hostID string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[hostID]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *MemStore) SaveToken(_ context.Context, hostID string, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *tok
	if saved.RefreshToken == "" {
		saved.RefreshToken = s.tokens[hostID].RefreshToken
	}
	s.tokens[hostID] = saved
	return nil
}

func (s *MemStore) BusyFeedURL(_ context.Context, hostID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hosts[hostID].BusyFeedURL, nil
}

func sortByStart(bs []Booking) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].StartTime.Before(bs[j].StartTime) })
}
