package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// ShowRepo reads showtimes from the catalog's shows table.  The table is
// owned by the catalog service; this repository never writes it.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// Showtime implements Catalog.
func (r *ShowRepo) Showtime(ctx context.Context, id string) (*model.Showtime, error) {
	const q = `SELECT id, title, starts_at, base_price_cents FROM shows WHERE id = ?`
	var s model.Showtime
	var starts sql.NullTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Title, &starts, &s.PriceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShowtimeNotFound
		}
		return nil, err
	}
	s.StartsAt = timePtr(starts)
	return &s, nil
}

// StaticCatalog serves showtimes from memory.  Unknown ids are answered with
// the default price when one is configured, which lets a development server
// provision any showtime id.
type StaticCatalog struct {
	mu           sync.RWMutex
	shows        map[string]model.Showtime
	defaultPrice int64
}

// NewStaticCatalog returns a catalog whose unknown showtimes cost
// defaultPrice per seat; zero makes unknown ids not found.
func NewStaticCatalog(defaultPrice int64) *StaticCatalog {
	return &StaticCatalog{shows: make(map[string]model.Showtime), defaultPrice: defaultPrice}
}

// Put adds or replaces a showtime.
func (c *StaticCatalog) Put(s model.Showtime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shows[s.ID] = s
}

// Showtime implements Catalog.
func (c *StaticCatalog) Showtime(_ context.Context, id string) (*model.Showtime, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.shows[id]; ok {
		if s.StartsAt != nil {
			t := *s.StartsAt
			s.StartsAt = &t
		}
		return &s, nil
	}
	if c.defaultPrice > 0 && id != "" {
		return &model.Showtime{ID: id, Title: "Showtime " + id, PriceCents: c.defaultPrice}, nil
	}
	return nil, model.ErrShowtimeNotFound
}
