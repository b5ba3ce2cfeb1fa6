// core/contact_table.go
package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// ContactTable holds scripted contacts keyed tx host -> rx host. Intervals
// of the same pair are additive. A table is immutable once loaded and is
// shared by every ForcedConnection interface built from the same file.
type ContactTable struct {
	contacts map[string]map[string][]model.ContactInterval
	rows     int
}

// NewContactTable returns an empty table.
func NewContactTable() *ContactTable {
	return &ContactTable{contacts: make(map[string]map[string][]model.ContactInterval)}
}

// Add records a one-directional contact tx -> rx over [start, end].
func (t *ContactTable) Add(tx, rx string, start, end float64) error {
	if start > end {
		return fmt.Errorf("%w: contact %s->%s starts after it ends (%g > %g)", ErrConfig, tx, rx, start, end)
	}
	byRx, ok := t.contacts[tx]
	if !ok {
		byRx = make(map[string][]model.ContactInterval)
		t.contacts[tx] = byRx
	}
	byRx[rx] = append(byRx[rx], model.ContactInterval{Start: start, End: end})
	t.rows++
	return nil
}

// InContact reports whether some tx -> rx interval contains now.
func (t *ContactTable) InContact(tx, rx string, now float64) bool {
	if t == nil {
		return false
	}
	for _, ci := range t.contacts[tx][rx] {
		if ci.Contains(now) {
			return true
		}
	}
	return false
}

// Intervals returns the tx -> rx intervals sorted by start time.
func (t *ContactTable) Intervals(tx, rx string) []model.ContactInterval {
	if t == nil {
		return nil
	}
	src := t.contacts[tx][rx]
	out := make([]model.ContactInterval, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Len returns the number of rows loaded.
func (t *ContactTable) Len() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// LoadContactsCSV parses tx,rx,start,end rows. Blank lines and lines
// starting with '#' are skipped.
func LoadContactsCSV(r io.Reader) (*ContactTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	table := NewContactTable()
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: contacts line %d: %v", ErrConfig, perr.Line, perr.Err)
			}
			return nil, fmt.Errorf("%w: reading contacts: %v", ErrIO, err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) != 4 {
			return nil, fmt.Errorf("%w: contacts line %d: want 4 fields, got %d", ErrConfig, line, len(rec))
		}
		tx := strings.TrimSpace(rec[0])
		rx := strings.TrimSpace(rec[1])
		if tx == "" || rx == "" {
			return nil, fmt.Errorf("%w: contacts line %d: empty host name", ErrConfig, line)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: contacts line %d: start %q: %v", ErrConfig, line, rec[2], err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: contacts line %d: end %q: %v", ErrConfig, line, rec[3], err)
		}
		if err := table.Add(tx, rx, start, end); err != nil {
			return nil, fmt.Errorf("contacts line %d: %w", line, err)
		}
	}
	return table, nil
}

// LoadContactsFile opens path and parses it with LoadContactsCSV.
func LoadContactsFile(path string) (*ContactTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: contacts csv %q: %v", ErrIO, path, err)
	}
	defer f.Close()

	table, err := LoadContactsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
