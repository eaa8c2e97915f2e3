package sessions

import (
	"fmt"

	"SessionScope/internal/domain/models"
	"SessionScope/pkg/config"
)

// Registry is the process-wide catalog of session definitions. It is built
// once at startup and handed to components explicitly; nothing mutates it
// afterwards.
type Registry struct {
	byName map[string]models.SessionDefinition
	names  []string
}

// NewRegistryFromConfig builds the catalog from configured entries, falling
// back to the built-in exchange set when none are configured. It fails fast on
// the first unknown zone, malformed clock string or duplicate name.
func NewRegistryFromConfig(entries []config.SessionEntry) (*Registry, error) {
	if len(entries) == 0 {
		entries = DefaultEntries()
	}
	r := &Registry{byName: make(map[string]models.SessionDefinition, len(entries))}
	for _, e := range entries {
		open, err := models.ParseClock(e.Open)
		if err != nil {
			return nil, fmt.Errorf("session '%s' open: %w", e.Name, err)
		}
		end, err := models.ParseClock(e.Close)
		if err != nil {
			return nil, fmt.Errorf("session '%s' close: %w", e.Name, err)
		}
		def, err := models.NewSessionDefinition(e.Name, e.Timezone, open, end, e.Description)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate session '%s'", def.Name)
		}
		r.byName[def.Name] = def
		r.names = append(r.names, def.Name)
	}
	return r, nil
}

// Get looks a definition up by name.
func (r *Registry) Get(name string) (models.SessionDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Names returns session names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns definitions in registration order.
func (r *Registry) All() []models.SessionDefinition {
	out := make([]models.SessionDefinition, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// DefaultEntries is the built-in exchange catalog used when the config file
// defines no sessions. Tokyo's lunch break is modeled as two separate
// sessions; a single window with an intraday halt is not supported.
func DefaultEntries() []config.SessionEntry {
	return []config.SessionEntry{
		{Name: "frankfurt_xetra", Timezone: "Europe/Berlin", Open: "09:00", Close: "17:30",
			Description: "Xetra core trading hours (DAX/GER40)"},
		{Name: "london_lse", Timezone: "Europe/London", Open: "08:00", Close: "16:30",
			Description: "London Stock Exchange core trading hours"},
		{Name: "newyork_nyse", Timezone: "America/New_York", Open: "09:30", Close: "16:00",
			Description: "New York Stock Exchange core trading hours"},
		{Name: "asia_generic_utc", Timezone: "UTC", Open: "00:00", Close: "09:00",
			Description: "Generic Asian hours approximated in UTC"},
		{Name: "tokyo_morning", Timezone: "Asia/Tokyo", Open: "09:00", Close: "11:30",
			Description: "Tokyo Stock Exchange morning auction"},
		{Name: "tokyo_afternoon", Timezone: "Asia/Tokyo", Open: "12:30", Close: "15:00",
			Description: "Tokyo Stock Exchange afternoon auction"},
	}
}
