package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onnwee/foundermatch/internal/match"
)

// ErrWriteFiles wraps every failure of FileSink.Publish.
var ErrWriteFiles = errors.New("write result files")

// FileSink writes both top-K tables and the matrix artifact into a directory.
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Name identifies the sink in logs and metrics.
func (s *FileSink) Name() string { return "files" }

// Publish writes the run's outputs. Each file is written to a temporary name and
// renamed into place so readers never observe a partial file.
func (s *FileSink) Publish(ctx context.Context, run *match.Run) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrWriteFiles, err)
		}
	}()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputs := []struct {
		name  string
		write func(f *os.File) error
	}{
		{FounderMatchesFile, func(f *os.File) error {
			return WriteMatchesCSV(f, match.FounderToProvider, run.FounderTopK)
		}},
		{ProviderMatchesFile, func(f *os.File) error {
			return WriteMatchesCSV(f, match.ProviderToFounder, run.ProviderTopK)
		}},
		{MatrixFile, func(f *os.File) error {
			return EncodeMatrix(f, run.ID, run.Matrix)
		}},
	}

	for _, out := range outputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(s.Dir, out.name), out.write); err != nil {
			return err
		}
	}
	return nil
}

// Paths returns the files Publish writes, in write order.
func (s *FileSink) Paths() []string {
	return []string{
		filepath.Join(s.Dir, FounderMatchesFile),
		filepath.Join(s.Dir, ProviderMatchesFile),
		filepath.Join(s.Dir, MatrixFile),
	}
}

func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
