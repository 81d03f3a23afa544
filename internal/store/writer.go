package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/synheart/synheart-seizure/internal/models"
)

// Output formats for observation writers.
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

func marshalObservation(summary models.EpisodeSummary, format string) ([]byte, error) {
	obs := summary.Observation()
	if format == FormatNDJSON {
		return json.Marshal(obs)
	}
	return json.MarshalIndent(obs, "", "  ")
}

// StdoutWriter prints each episode as a FHIR observation
type StdoutWriter struct {
	out    io.Writer
	format string
	mu     sync.Mutex
}

// NewStdoutWriter creates a new stdout writer
func NewStdoutWriter(out io.Writer, format string) *StdoutWriter {
	return &StdoutWriter{
		out:    out,
		format: format,
	}
}

func (w *StdoutWriter) Save(_ context.Context, summary models.EpisodeSummary) error {
	data, err := marshalObservation(summary, w.format)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(append(data, '\n'))
	return err
}

// FileWriter writes one observation file per episode
type FileWriter struct {
	dir    string
	format string
	mu     sync.Mutex
}

// NewFileWriter creates the directory if needed
func NewFileWriter(dir string, format string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &FileWriter{
		dir:    dir,
		format: format,
	}, nil
}

// Path returns the file an episode is written to.
func (w *FileWriter) Path(episodeID string) string {
	return filepath.Join(w.dir, fmt.Sprintf("seizure_observation_%s.json", episodeID))
}

func (w *FileWriter) Save(_ context.Context, summary models.EpisodeSummary) error {
	data, err := marshalObservation(summary, w.format)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.WriteFile(w.Path(summary.EpisodeID), data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
