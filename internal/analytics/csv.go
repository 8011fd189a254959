// Package analytics appends one CSV row per observed slot so runs can be
// analysed offline.
package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

var header = []string{"run_id", "observed_at", "merchant_id", "date", "time", "party_size", "service", "lead_days", "notify", "reason"}

// Recorder writes observation rows. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// Open appends to the CSV file at path, writing the header when the file is
// new or empty.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r := &Recorder{w: csv.NewWriter(f), closer: f}
	if st.Size() == 0 {
		if err := r.w.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return r, nil
}

// NewWriter records to w, always starting with a header row.
func NewWriter(w io.Writer) (*Recorder, error) {
	r := &Recorder{w: csv.NewWriter(w)}
	if err := r.w.Write(header); err != nil {
		return nil, err
	}
	return r, nil
}

// Record writes one row for an evaluated slot.
func (r *Recorder) Record(runID string, observed time.Time, rec reservation.SlotRecord, notify bool, reason string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write([]string{
		runID,
		observed.UTC().Format(time.RFC3339),
		rec.Key.MerchantID,
		rec.Key.Date,
		rec.Key.Time,
		strconv.Itoa(rec.Key.PartySize),
		rec.Key.Service,
		strconv.Itoa(rec.LeadDays),
		strconv.FormatBool(notify),
		reason,
	})
}

// Flush pushes buffered rows to the underlying writer.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	return r.w.Error()
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if err := r.Flush(); err != nil {
		return err
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
