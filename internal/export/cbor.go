package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/onnwee/foundermatch/internal/match"
)

// ErrInvalidMatrix is returned when a matrix artifact cannot be decoded or has an inconsistent shape.
var ErrInvalidMatrix = errors.New("invalid match matrix")

// matrixVersion is written into every artifact.
const matrixVersion = 1

// matrixArtifact is the on-disk form of a score matrix.
type matrixArtifact struct {
	Version int           `cbor:"version"`
	RunID   string        `cbor:"run_id"`
	Matrix  *match.Matrix `cbor:"matrix"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// EncodeMatrix writes m as a deterministic CBOR artifact tagged with runID.
func EncodeMatrix(w io.Writer, runID string, m *match.Matrix) error {
	if m == nil {
		return fmt.Errorf("%w: nil matrix", ErrInvalidMatrix)
	}
	if err := encMode.NewEncoder(w).Encode(matrixArtifact{
		Version: matrixVersion,
		RunID:   runID,
		Matrix:  m,
	}); err != nil {
		return fmt.Errorf("failed to encode match matrix: %w", err)
	}
	return nil
}

// DecodeMatrix reads a CBOR artifact written by EncodeMatrix and returns the run ID
// and matrix. Decoded matrices carry scores and labels but no reason clauses.
func DecodeMatrix(r io.Reader) (string, *match.Matrix, error) {
	var a matrixArtifact
	if err := cbor.NewDecoder(r).Decode(&a); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
	}
	if a.Version != matrixVersion {
		return "", nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidMatrix, a.Version)
	}
	if a.Matrix == nil {
		return "", nil, fmt.Errorf("%w: missing matrix", ErrInvalidMatrix)
	}
	if err := validateShape(a.Matrix); err != nil {
		return "", nil, err
	}
	return a.RunID, a.Matrix, nil
}

func validateShape(m *match.Matrix) error {
	if len(m.Scores) != len(m.FounderIDs) {
		return fmt.Errorf("%w: %d rows for %d founders", ErrInvalidMatrix, len(m.Scores), len(m.FounderIDs))
	}
	if len(m.FounderLabels) != len(m.FounderIDs) || len(m.ProviderLabels) != len(m.ProviderIDs) {
		return fmt.Errorf("%w: label count does not match ids", ErrInvalidMatrix)
	}
	for i, row := range m.Scores {
		if len(row) != len(m.ProviderIDs) {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMatrix, i, len(row), len(m.ProviderIDs))
		}
	}
	return nil
}
