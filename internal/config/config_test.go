package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.HoursPerECTS)
	assert.Equal(t, 500, cfg.MaxOccurrences)
	assert.Equal(t, 365, cfg.HorizonDays)
	assert.Equal(t, 5000, cfg.MaxSeriesOccurrences)
	assert.Equal(t, "0 3 * * *", cfg.DedupCron)
	assert.Equal(t, "*/30 * * * *", cfg.ImportCron)
	assert.Nil(t, cfg.BasicAuth)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
listen: ":9090"
hours_per_ects: 25
calendars:
  - id: uni
    url: https://example.com/a.ics
    owner_id: u1
    course_id: c1
basic_auth:
  username: admin
  password: pw
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 25.0, cfg.HoursPerECTS)
	assert.Equal(t, "UTC", cfg.Timezone)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)

	src := cfg.Sources()
	require.Len(t, src, 1)
	assert.Equal(t, "u1", src[0].OwnerID)
	assert.Equal(t, "c1", src[0].CourseID)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.HorizonDays = 90
	cfg.Calendars = append(cfg.Calendars, CalendarConfig{ID: "x", URL: "https://x", OwnerID: "u"})
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Timezone = "Not/AZone"
	loc, err = cfg.Location()
	require.Error(t, err)
	assert.Equal(t, "UTC", loc.String())
}
