// Package mesh writes and inspects Wavefront OBJ text meshes.
package mesh

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Extension is the file extension for meshes written by this package.
const Extension = ".obj"

// ErrFaceIndex is returned when a face references a vertex that does not exist.
var ErrFaceIndex = errors.New("face references missing vertex")

// Mesh is a triangle mesh. Faces hold 0-based vertex indices.
type Mesh struct {
	Comment  string
	Vertices [][3]float64
	Faces    [][3]int
}

// WriteOBJ serializes m as OBJ: one comment line, then v records, then f
// records with 1-based indices.
func (m Mesh) WriteOBJ(w io.Writer) error {
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(m.Vertices) {
				return fmt.Errorf("%w: face %d index %d", ErrFaceIndex, i, idx)
			}
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", m.Comment)
	for _, v := range m.Vertices {
		fmt.Fprintf(&buf, "v %s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(&buf, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile writes m to path via a temp file in the same directory, so readers
// never observe a partially written mesh.
func (m Mesh) WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mesh-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp mesh: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := m.WriteOBJ(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp mesh: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp mesh: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp mesh: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename mesh: %w", err)
	}
	return nil
}

// Placeholder returns a unit cube centred on the origin.
func Placeholder(comment string) Mesh {
	const h = 0.5
	return Mesh{
		Comment: comment,
		Vertices: [][3]float64{
			{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
			{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
		},
		Faces: [][3]int{
			{0, 2, 1}, {0, 3, 2}, // back
			{4, 5, 6}, {4, 6, 7}, // front
			{0, 1, 5}, {0, 5, 4}, // bottom
			{3, 7, 6}, {3, 6, 2}, // top
			{0, 4, 7}, {0, 7, 3}, // left
			{1, 2, 6}, {1, 6, 5}, // right
		},
	}
}

// Stats counts vertex and face records in an OBJ stream.
func Stats(r io.Reader) (vertices, faces int, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "v "):
			vertices++
		case strings.HasPrefix(line, "f "):
			faces++
		}
	}
	return vertices, faces, sc.Err()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
