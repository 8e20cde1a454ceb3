package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/resilience"
)

// Source produces records for the initial bulk load. Fetch calls emit for
// every record in source order; records emitted before Fetch returns an
// error are kept by the loader.
type Source interface {
	Name() string
	Fetch(ctx context.Context, emit func(hashtree.Record)) error
}

// DecodeRecords streams a JSON array of {"key","value"} objects from r.
// Records are emitted as they are decoded, so a truncated or corrupt payload
// still yields everything before the damage. Decode failures are wrapped in
// ErrMalformedPayload and marked permanent.
func DecodeRecords(r io.Reader, emit func(hashtree.Record)) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return malformed("reading array start: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return malformed("expected JSON array, got %v", tok)
	}
	for i := 0; dec.More(); i++ {
		var rec hashtree.Record
		if err := dec.Decode(&rec); err != nil {
			return malformed("record %d: %v", i, err)
		}
		emit(rec)
	}
	if _, err := dec.Token(); err != nil {
		return malformed("reading array end: %v", err)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return resilience.Permanent(fmt.Errorf("%w: %s", apperrors.ErrMalformedPayload, fmt.Sprintf(format, args...)))
}

// FileSource reads records from a JSON file on disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Fetch(ctx context.Context, emit func(hashtree.Record)) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("%w: opening %s: %v", apperrors.ErrSourceUnavailable, s.Path, err))
	}
	defer f.Close()
	return DecodeRecords(f, emit)
}

// StaticSource serves a fixed slice of records.
type StaticSource struct {
	Label   string
	Records []hashtree.Record
}

func (s *StaticSource) Name() string { return s.Label }

func (s *StaticSource) Fetch(ctx context.Context, emit func(hashtree.Record)) error {
	for _, r := range s.Records {
		emit(r)
	}
	return nil
}

// FallbackRecords is the set loaded when no configured source yields data,
// so the index is never left empty.
func FallbackRecords() []hashtree.Record {
	return []hashtree.Record{
		{Key: "apple", Value: "fruit"},
		{Key: "banana", Value: "fruit"},
		{Key: "cat", Value: "animal"},
	}
}
