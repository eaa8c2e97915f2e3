package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionScope/pkg/config"
)

func TestRegistryFallsBackToBuiltins(t *testing.T) {
	r, err := NewRegistryFromConfig(nil)
	require.NoError(t, err)
	assert.Len(t, r.Names(), 6)

	def, ok := r.Get("frankfurt_xetra")
	require.True(t, ok)
	assert.Equal(t, "Europe/Berlin", def.Timezone)
	assert.False(t, def.CrossesMidnight())

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryKeepsConfigOrder(t *testing.T) {
	r, err := NewRegistryFromConfig([]config.SessionEntry{
		{Name: "zeta", Timezone: "UTC", Open: "01:00", Close: "02:00"},
		{Name: "alpha", Timezone: "UTC", Open: "03:00", Close: "04:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, r.Names())
	require.Len(t, r.All(), 2)
	assert.Equal(t, "zeta", r.All()[0].Name)
}

func TestRegistryRejectsBrokenEntries(t *testing.T) {
	cases := []struct {
		name  string
		entry config.SessionEntry
	}{
		{"unknown zone", config.SessionEntry{Name: "s", Timezone: "Mars/Olympus_Mons", Open: "09:00", Close: "17:00"}},
		{"bad open", config.SessionEntry{Name: "s", Timezone: "UTC", Open: "9am", Close: "17:00"}},
		{"bad close", config.SessionEntry{Name: "s", Timezone: "UTC", Open: "09:00", Close: "25:00"}},
		{"equal open and close", config.SessionEntry{Name: "s", Timezone: "UTC", Open: "09:00", Close: "09:00"}},
		{"missing name", config.SessionEntry{Timezone: "UTC", Open: "09:00", Close: "17:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistryFromConfig([]config.SessionEntry{tc.entry})
			assert.Error(t, err)
		})
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistryFromConfig([]config.SessionEntry{
		{Name: "dup", Timezone: "UTC", Open: "01:00", Close: "02:00"},
		{Name: "dup", Timezone: "UTC", Open: "03:00", Close: "04:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
