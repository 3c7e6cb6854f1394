package meshio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/facet/pkg/mesh"
	"go.uber.org/zap"
)

// Load reads the mesh at path, choosing the codec by extension. The mesh is
// named after the file's base name without extension.
func Load(path string, opts ...Option) (*mesh.Mesh, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".off" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meshio: open: %w", err)
	}
	defer f.Close()

	opts = append(opts, WithName(ObjectName(path)), withPath(path))
	return ReadOFF(f, opts...)
}

// Save writes m to path, choosing the codec by extension: .off keeps the
// polygons, .stl fan-triangulates them.
func Save(path string, m *mesh.Mesh, opts ...Option) error {
	o := buildOptions(opts)
	var err error
	format := strings.ToLower(filepath.Ext(path))
	switch format {
	case ".off":
		err = saveOFF(path, m)
	case ".stl":
		err = SaveSTL(path, m)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return err
	}
	o.log.Info("saved mesh",
		zap.String("path", path),
		zap.String("format", strings.TrimPrefix(format, ".")),
		zap.Int("vertices", m.NumVertices()),
		zap.Int("faces", m.NumFaces()))
	return nil
}

func saveOFF(path string, m *mesh.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("meshio: create: %w", err)
	}
	if err := WriteOFF(f, m); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("meshio: close: %w", err)
	}
	return nil
}

// ObjectName returns the base name of path without its extension.
func ObjectName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func withPath(path string) Option {
	return func(o *options) { o.path = path }
}
