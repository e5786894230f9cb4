// Package availability holds the clinic's static weekly calendar: for each
// doctor key and weekday, the ordered slot labels a patient may book.
//
// A Schedule is immutable after construction and safe for concurrent use.
package availability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// Weekly maps a weekday to its slot labels.
type Weekly map[time.Weekday][]string

type Schedule struct {
	doctors map[string][7][]string
}

// New copies def into a Schedule. Slots are de-duplicated and sorted; a
// weekday absent from a doctor's map is closed.
func New(def map[string]Weekly) *Schedule {
	s := &Schedule{doctors: make(map[string][7][]string, len(def))}
	for key, week := range def {
		var days [7][]string
		for day, slots := range week {
			if day < time.Sunday || day > time.Saturday {
				continue
			}
			days[day] = normalize(slots)
		}
		s.doctors[key] = days
	}
	return s
}

func normalize(slots []string) []string {
	seen := make(map[string]struct{}, len(slots))
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	// HH:MM labels sort chronologically as strings
	sort.Strings(out)
	return out
}

// IsAvailable reports whether slot is published for doctorKey on the weekday
// of date. Unknown doctors and closed days are never available; slot labels
// must match exactly.
func (s *Schedule) IsAvailable(doctorKey string, date time.Time, slot string) bool {
	days, ok := s.doctors[doctorKey]
	if !ok {
		return false
	}
	for _, published := range days[date.Weekday()] {
		if published == slot {
			return true
		}
	}
	return false
}

// Slots returns a copy of the slots published for doctorKey on date's weekday.
func (s *Schedule) Slots(doctorKey string, date time.Time) []string {
	days, ok := s.doctors[doctorKey]
	if !ok {
		return nil
	}
	return append([]string(nil), days[date.Weekday()]...)
}

// Knows reports whether doctorKey has an entry, even if every day is closed.
func (s *Schedule) Knows(doctorKey string) bool {
	_, ok := s.doctors[doctorKey]
	return ok
}

// Doctors lists the configured doctor keys in sorted order.
func (s *Schedule) Doctors() []string {
	keys := make([]string, 0, len(s.doctors))
	for k := range s.doctors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultSlots are the half-hour slots the clinic front desk publishes.
var DefaultSlots = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
}

// DefaultDoctorKeys are the clinic's doctors as the booking page knows them.
var DefaultDoctorKeys = []string{
	"dr-anoop", "dr-terry", "dr-krishna", "dr-justin",
	"dr-renjith", "dr-joseph", "dr-sijo", "dr-shibu",
}

// Default opens every known doctor Monday to Saturday with DefaultSlots.
func Default() *Schedule {
	def := make(map[string]Weekly, len(DefaultDoctorKeys))
	for _, key := range DefaultDoctorKeys {
		week := Weekly{}
		for day := time.Monday; day <= time.Saturday; day++ {
			week[day] = DefaultSlots
		}
		def[key] = week
	}
	return New(def)
}

type fileFormat struct {
	Doctors map[string]map[string][]string `yaml:"doctors"`
}

// LoadFile reads a YAML schedule:
//
//	doctors:
//	  dr-anoop:
//	    monday: ["09:00", "09:30"]
//	    sat: ["09:00"]
func LoadFile(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read availability file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the YAML form accepted by LoadFile.
func Parse(data []byte) (*Schedule, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	if len(f.Doctors) == 0 {
		return nil, errors.New("availability defines no doctors")
	}

	def := make(map[string]Weekly, len(f.Doctors))
	for key, days := range f.Doctors {
		week := Weekly{}
		for dayName, slots := range days {
			day, err := ParseWeekday(dayName)
			if err != nil {
				return nil, fmt.Errorf("doctor %s: %w", key, err)
			}
			for _, slot := range slots {
				if !ValidSlot(slot) {
					return nil, fmt.Errorf("doctor %s %s: invalid slot %q", key, day, slot)
				}
			}
			week[day] = append(week[day], slots...)
		}
		def[key] = week
	}
	return New(def), nil
}

// ParseWeekday accepts full or three letter English names (any case) or an
// index 0-6 with 0 being Sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday index %d out of range", n)
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ParseDate reads an ISO calendar date as a clinic-local midnight.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// ValidSlot reports whether s is a well formed HH:MM label.
func ValidSlot(s string) bool {
	if len(s) != len(SlotLayout) {
		return false
	}
	_, err := time.Parse(SlotLayout, s)
	return err == nil
}
