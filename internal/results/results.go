// Package results writes batch results to JSON files and reads them back.
package results

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

const (
	filePrefix = "accounts_"
	fileSuffix = ".json"
	// StampLayout is the timestamp embedded in result file names.
	StampLayout = "20060102_150405"
)

// ErrNoResults is returned by Latest when the directory holds no result file.
var ErrNoResults = errors.New("no result files found")

// codec keeps non-ASCII text readable in the files.
var codec = json.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// FileName returns the name of the result file for env written at t.
func FileName(env account.Environment, t time.Time) string {
	return filePrefix + string(env) + "_" + t.Format(StampLayout) + fileSuffix
}

// Writer stores batch results under a directory.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithClock replaces the clock used to name files.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter returns a Writer for dir. An empty dir means "output".
func NewWriter(dir string, opts ...WriterOption) *Writer {
	if dir == "" {
		dir = "output"
	}
	w := &Writer{
		dir:    dir,
		now:    time.Now,
		logger: observability.GetLogger().Named("results"),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write stores r in a new file and returns its path. The file appears
// atomically: it is written under a temporary name and renamed.
func (w *Writer) Write(r account.BatchResult) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, FileName(r.Environment, w.now()))

	tmp, err := os.CreateTemp(w.dir, ".accounts-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to flush result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to finalize result file: %w", err)
	}

	w.logger.Info("Results saved.", zap.String("path", path), zap.Int("accounts", r.TotalAccounts))
	return path, nil
}

// Encode writes r as indented JSON.
func Encode(out io.Writer, r account.BatchResult) error {
	data, err := codec.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// Load reads a result file.
func Load(path string) (account.BatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return account.BatchResult{}, fmt.Errorf("failed to read result file: %w", err)
	}
	var r account.BatchResult
	if err := codec.Unmarshal(data, &r); err != nil {
		return account.BatchResult{}, fmt.Errorf("failed to decode result file %s: %w", path, err)
	}
	return r, nil
}

// Latest returns the newest result file in dir, judged by the timestamp in
// its name.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoResults
		}
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	type candidate struct {
		name  string
		stamp string
	}
	var found []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, fileSuffix)
		if len(base) < len(StampLayout) {
			continue
		}
		stamp := base[len(base)-len(StampLayout):]
		if _, err := time.Parse(StampLayout, stamp); err != nil {
			continue
		}
		found = append(found, candidate{name: name, stamp: stamp})
	}
	if len(found) == 0 {
		return "", ErrNoResults
	}
	sort.Slice(found, func(i, j int) bool { return found[i].stamp > found[j].stamp })
	return filepath.Join(dir, found[0].name), nil
}
