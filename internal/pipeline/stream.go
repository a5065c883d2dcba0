package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	ngerrors "github.com/iamwavecut/ngprep/internal/errors"
)

type Mode string

const (
	ModeLine     Mode = "line"
	ModeDocument Mode = "document"
	ModeJSONL    Mode = "jsonl"
)

const maxLineBytes = 16 << 20

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLine, ModeDocument, ModeJSONL:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ngerrors.ErrUnsupportedMode, s)
}

// Stats summarizes one Process run.
type Stats struct {
	Records   int
	Empty     int
	CacheHits int
}

type record struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Text any             `json:"text"`
}

type result struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Text string          `json:"text"`
}

// Process reads records from r in the given mode and writes normalized output to w.
func (p *Pipeline) Process(ctx context.Context, r io.Reader, w io.Writer, mode Mode) (Stats, error) {
	bw := bufio.NewWriter(w)
	var (
		stats Stats
		err   error
	)
	switch mode {
	case ModeDocument:
		stats, err = p.processDocument(ctx, r, bw)
	case ModeLine:
		stats, err = p.processLines(ctx, r, bw)
	case ModeJSONL:
		stats, err = p.processJSONL(ctx, r, bw)
	default:
		return stats, fmt.Errorf("%w: %q", ngerrors.ErrUnsupportedMode, mode)
	}
	if flushErr := bw.Flush(); err == nil && flushErr != nil {
		err = errors.Wrap(flushErr, "flush output")
	}
	p.l.WithFields(log.Fields{
		"mode":       string(mode),
		"records":    stats.Records,
		"empty":      stats.Empty,
		"cache_hits": stats.CacheHits,
	}).Debug("stream processed")
	return stats, err
}

func (p *Pipeline) processDocument(ctx context.Context, r io.Reader, w *bufio.Writer) (Stats, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, errors.Wrap(err, "read document")
	}
	out, hit := p.normalize(ctx, string(raw))
	stats := Stats{Records: 1}
	if hit {
		stats.CacheHits++
	}
	if out == "" {
		stats.Empty++
		if p.skipEmpty {
			return stats, nil
		}
	}
	_, err = w.WriteString(out + "\n")
	return stats, errors.Wrap(err, "write document")
}

func (p *Pipeline) processLines(ctx context.Context, r io.Reader, w *bufio.Writer) (Stats, error) {
	var stats Stats
	err := p.scanChunks(r, func(lines []string, _ int) error {
		inputs := make([]any, len(lines))
		for i, line := range lines {
			inputs[i] = line
		}
		outs, hits, err := p.batch(ctx, inputs)
		if err != nil {
			return err
		}
		stats.Records += len(outs)
		stats.CacheHits += hits
		for _, out := range outs {
			if out == "" {
				stats.Empty++
				if p.skipEmpty {
					continue
				}
			}
			if _, err := w.WriteString(out + "\n"); err != nil {
				return errors.Wrap(err, "write line")
			}
		}
		return nil
	})
	return stats, err
}

func (p *Pipeline) processJSONL(ctx context.Context, r io.Reader, w *bufio.Writer) (Stats, error) {
	var stats Stats
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	err := p.scanChunks(r, func(lines []string, firstLine int) error {
		records := make([]record, 0, len(lines))
		inputs := make([]any, 0, len(lines))
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var rec record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return fmt.Errorf("%w: line %d: %v", ngerrors.ErrInvalidInput, firstLine+i, err)
			}
			records = append(records, rec)
			inputs = append(inputs, rec.Text)
		}
		outs, hits, err := p.batch(ctx, inputs)
		if err != nil {
			return err
		}
		stats.Records += len(outs)
		stats.CacheHits += hits
		for i, out := range outs {
			if out == "" {
				stats.Empty++
				if p.skipEmpty {
					continue
				}
			}
			if err := enc.Encode(result{ID: records[i].ID, Text: out}); err != nil {
				return errors.Wrap(err, "encode record")
			}
		}
		return nil
	})
	return stats, err
}

// scanChunks feeds fn with up to chunkSize lines at a time along with the
// 1-based number of the first line in the chunk.
func (p *Pipeline) scanChunks(r io.Reader, fn func(lines []string, firstLine int) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	chunk := make([]string, 0, p.chunkSize)
	first, lineNo := 1, 0
	for scanner.Scan() {
		lineNo++
		chunk = append(chunk, scanner.Text())
		if len(chunk) == p.chunkSize {
			if err := fn(chunk, first); err != nil {
				return err
			}
			chunk = chunk[:0]
			first = lineNo + 1
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan input")
	}
	if len(chunk) > 0 {
		return fn(chunk, first)
	}
	return nil
}
