package analytics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

func sampleRecord() reservation.SlotRecord {
	return reservation.SlotRecord{
		Key:      reservation.SlotKey{MerchantID: "278278", Date: "2026-10-20", Time: "7:30 PM", PartySize: 2, Service: "Dinner"},
		LeadDays: 1,
	}
}

func TestRecordWritesRows(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewWriter(&buf)
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record("run-1", at, sampleRecord(), true, "first_sighting"))
	require.NoError(t, r.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(header, ","), lines[0])
	assert.Equal(t, "run-1,2026-10-19T18:00:00Z,278278,2026-10-20,7:30 PM,2,Dinner,1,true,first_sighting", lines[1])
}

func TestOpenAppendsWithoutRepeatingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	at := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		r, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, r.Record("run", at, sampleRecord(), false, "cooling_down"))
		require.NoError(t, r.Close())
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "run_id"))
	assert.Equal(t, 3, strings.Count(string(b), "\n"))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NoError(t, r.Record("x", time.Now(), sampleRecord(), true, "r"))
	assert.NoError(t, r.Close())
}
