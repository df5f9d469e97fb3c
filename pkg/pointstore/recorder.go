package pointstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// importBatch bounds how many points are written per transaction.
const importBatch = 5000

// ImportStats summarizes an ImportRecorder run.
type ImportStats struct {
	Lines     int `json:"lines"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`   // already stored
	Ignored   int `json:"ignored"`   // non-location payloads
	Malformed int `json:"malformed"` // unparseable lines
}

// recorderPayload is the subset of an Owntracks message we keep.
type recorderPayload struct {
	Alt  *float64 `json:"alt"`
	Acc  *float64 `json:"acc"`
	Type string   `json:"_type"`
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	Tst  int64    `json:"tst"`
}

// ImportRecorder reads a Recorder ".rec" file, one "<timestamp>\t<topic>\t<json>"
// message per line, and stores its location messages under user and device.
func (s *Store) ImportRecorder(ctx context.Context, r io.Reader, user, device string) (ImportStats, error) {
	var stats ImportStats
	batch := make([]track.RawPoint, 0, importBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, skipped, err := s.InsertPoints(ctx, user, device, batch)
		if err != nil {
			return err
		}
		stats.Inserted += inserted
		stats.Skipped += skipped
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++

		p, ok, err := parseRecorderLine(line)
		if err != nil {
			stats.Malformed++
			s.logger.Debug("skipping malformed recorder line", "line", stats.Lines, "error", err)
			continue
		}
		if !ok {
			stats.Ignored++
			continue
		}
		batch = append(batch, p)
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading recorder file: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	s.logger.Info("imported recorder file",
		"user", user,
		"device", device,
		"lines", stats.Lines,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"ignored", stats.Ignored,
		"malformed", stats.Malformed)
	return stats, nil
}

// parseRecorderLine returns ok=false for well-formed lines that carry no location.
func parseRecorderLine(line string) (track.RawPoint, bool, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return track.RawPoint{}, false, fmt.Errorf("expected 3 tab-separated fields, got %d", len(parts))
	}
	var payload recorderPayload
	if err := json.Unmarshal([]byte(parts[2]), &payload); err != nil {
		return track.RawPoint{}, false, err
	}
	if payload.Type != "location" {
		return track.RawPoint{}, false, nil
	}
	if payload.Tst == 0 {
		return track.RawPoint{}, false, errors.New("location without tst")
	}
	return track.RawPoint{
		Lat: payload.Lat,
		Lon: payload.Lon,
		Tst: payload.Tst,
		Alt: payload.Alt,
		Acc: payload.Acc,
	}, true, nil
}
