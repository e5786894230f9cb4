package availability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s, time.UTC)
	require.NoError(t, err)
	return d
}

func TestDefault_MondaySlots(t *testing.T) {
	s := Default()
	monday := date(t, "2026-10-19")
	require.Equal(t, time.Monday, monday.Weekday())

	assert.True(t, s.IsAvailable("dr-anoop", monday, "09:00"))
	assert.True(t, s.IsAvailable("dr-anoop", monday, "16:30"))
	assert.False(t, s.IsAvailable("dr-anoop", monday, "09:05"), "labels match exactly")
	assert.False(t, s.IsAvailable("dr-anoop", monday, "9:00"))
	assert.False(t, s.IsAvailable("dr-anoop", monday, "12:00"))
}

func TestDefault_SundayClosedForEveryone(t *testing.T) {
	s := Default()
	sunday := date(t, "2026-10-18")
	require.Equal(t, time.Sunday, sunday.Weekday())

	for _, key := range s.Doctors() {
		assert.Empty(t, s.Slots(key, sunday))
		for _, slot := range DefaultSlots {
			assert.False(t, s.IsAvailable(key, sunday, slot), "%s %s", key, slot)
		}
	}
}

func TestIsAvailable_UnknownDoctorFailsClosed(t *testing.T) {
	s := Default()
	assert.False(t, s.IsAvailable("dr-nobody", date(t, "2026-10-19"), "09:00"))
	assert.Nil(t, s.Slots("dr-nobody", date(t, "2026-10-19")))
	assert.False(t, s.Knows("dr-nobody"))
	assert.True(t, s.Knows("dr-sijo"))
}

func TestNew_CopiesAndSortsInput(t *testing.T) {
	slots := []string{"14:00", "09:00", "09:00"}
	s := New(map[string]Weekly{"dr-a": {time.Tuesday: slots}})
	slots[0] = "23:00"

	tuesday := date(t, "2026-10-20")
	assert.Equal(t, []string{"09:00", "14:00"}, s.Slots("dr-a", tuesday))

	got := s.Slots("dr-a", tuesday)
	got[0] = "changed"
	assert.Equal(t, []string{"09:00", "14:00"}, s.Slots("dr-a", tuesday))
}

func TestParse_YAML(t *testing.T) {
	doc := []byte(`
doctors:
  dr-anoop:
    monday: ["09:00", "09:30"]
    sat: ["10:00"]
  dr-terry:
    "3": ["15:00"]
`)
	s, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30"}, s.Slots("dr-anoop", date(t, "2026-10-19")))
	assert.Equal(t, []string{"10:00"}, s.Slots("dr-anoop", date(t, "2026-10-24")))
	assert.Empty(t, s.Slots("dr-anoop", date(t, "2026-10-20")))
	assert.True(t, s.IsAvailable("dr-terry", date(t, "2026-10-21"), "15:00"))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`doctors: {}`))
	assert.Error(t, err)

	_, err = Parse([]byte("doctors:\n  dr-a:\n    funday: [\"09:00\"]\n"))
	assert.ErrorContains(t, err, "unknown weekday")

	_, err = Parse([]byte("doctors:\n  dr-a:\n    monday: [\"9am\"]\n"))
	assert.ErrorContains(t, err, "invalid slot")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "availability.yaml")
	require.NoError(t, os.WriteFile(path, []byte("doctors:\n  dr-x:\n    fri: [\"11:00\"]\n"), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, s.IsAvailable("dr-x", date(t, "2026-10-23"), "11:00"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{
		"Sunday": time.Sunday, "mon": time.Monday, "0": time.Sunday, "6": time.Saturday, " THU ": time.Thursday,
	}
	for in, want := range cases {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("7")
	assert.Error(t, err)
}

func TestValidSlot(t *testing.T) {
	assert.True(t, ValidSlot("09:00"))
	assert.True(t, ValidSlot("14:30"))
	assert.False(t, ValidSlot("9:00"))
	assert.False(t, ValidSlot("25:00"))
	assert.False(t, ValidSlot(""))
}

func TestParseDate_UsesClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	d, err := ParseDate("2026-10-19", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, loc, d.Location())

	_, err = ParseDate("19/10/2026", loc)
	assert.Error(t, err)
}
