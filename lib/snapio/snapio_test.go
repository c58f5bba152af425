package snapio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

func TestGadget2HeaderSize(t *testing.T) {
	if size := binary.Size(Gadget2Header{}); size != gadget2HeaderSize {
		t.Errorf("Gadget2Header{} has size %d, not %d", size, gadget2HeaderSize)
	}
}

func writeGadget2(t *testing.T, id []uint64) string {
	t.Helper()
	x := [][3]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	v := [][3]float32{{-1, -2, -3}, {-4, -5, -6}, {-7, -8, -9}}
	buf := &bytes.Buffer{}
	hd := Gadget2Header{BoxSize: 10, Redshift: 0.5}
	require.NoError(t, WriteGadget2(buf, binary.LittleEndian, hd, x, v, id))

	name := filepath.Join(t.TempDir(), "snapshot_000.0")
	require.NoError(t, os.WriteFile(name, buf.Bytes(), 0644))
	return name
}

func TestGadget2(t *testing.T) {
	tests := [][]uint64{
		{10, 11, 12},
		{10, 1 << 40, 12},
	}

	for i := range tests {
		name := writeGadget2(t, tests[i])
		f, err := NewGadget2(name, binary.LittleEndian)
		require.NoError(t, err)
		require.Equal(t, 3, f.Len())
		require.Equal(t, 10.0, f.Header().BoxSize)

		ps, err := f.Read(particles.NewLayout(3, 0))
		require.NoError(t, err)
		require.Len(t, ps, 3)
		for j, p := range ps {
			if p.ID != int64(tests[i][j]) {
				t.Errorf("%d) Expected particle %d to have ID %d, got %d.",
					i, j, tests[i][j], p.ID)
			}
			x := float64(3*j + 1)
			require.Equal(t, [3]float64{x, x + 1, x + 2}, p.Pos)
			require.Equal(t, []float64{-x, -x - 1, -x - 2}, p.Real)
		}
	}
}

func TestGadget2Failure(t *testing.T) {
	dir := t.TempDir()
	tiny := filepath.Join(dir, "tiny_file.txt")
	require.NoError(t, os.WriteFile(tiny, []byte("not a snapshot"), 0644))

	fileNames := []string{filepath.Join(dir, "file_that_doesn't_exist.dat"),
		dir, tiny}
	for _, fileName := range fileNames {
		if _, err := NewGadget2(fileName, binary.LittleEndian); err == nil {
			t.Errorf("Expected read of %s to fail, but succeeded.", fileName)
		}
	}

	_, err := NewGadget2(writeGadget2(t, []uint64{1, 2, 3}), binary.BigEndian)
	require.Error(t, err)
}

func TestText(t *testing.T) {
	name := filepath.Join(t.TempDir(), "particles.txt")
	text := `# id x y z vx vy vz
1 0.1 0.2 0.3 1 2 3
2 0.4 0.5 0.6   # no velocity

3 0.7 0.8 0.9 4 5 6
`
	require.NoError(t, os.WriteFile(name, []byte(text), 0644))

	f, err := Open("text", name, 0)
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	ps, err := f.Read(particles.NewLayout(4, 1))
	require.NoError(t, err)
	require.Len(t, ps, 3)
	require.Equal(t, int64(2), ps[1].ID)
	require.Equal(t, [3]float64{0.7, 0.8, 0.9}, ps[2].Pos)
	require.Equal(t, []float64{4, 5, 6, 0}, ps[2].Real)
	require.Equal(t, []float64{0, 0, 0, 0}, ps[1].Real)
	require.Equal(t, []int32{0}, ps[0].Int)

	// Layouts without room for velocities drop them.
	ps, err = f.Read(particles.NewLayout(0, 0))
	require.NoError(t, err)
	require.Empty(t, ps[0].Real)

	bad := []string{"1 2 3\n", "x 0 0 0\n", "1 0 0 zero\n"}
	for i := range bad {
		name := filepath.Join(t.TempDir(), "bad.txt")
		require.NoError(t, os.WriteFile(name, []byte(bad[i]), 0644))
		f, err := NewText(name, DefaultTextConfig)
		require.NoError(t, err)
		if _, err := f.Read(particles.NewLayout(3, 0)); err == nil {
			t.Errorf("%d) Expected %q to fail, but it succeeded.", i, bad[i])
		}
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	names := []string{}
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".txt")
		line := []byte{byte('0' + i)}
		line = append(line, " 0 0 0\n"...)
		require.NoError(t, os.WriteFile(name, line, 0644))
		names = append(names, name)
	}

	layout := particles.NewLayout(0, 0)
	tests := []struct {
		rank int
		ids  []int64
	}{
		{0, []int64{0, 2, 4}},
		{1, []int64{1, 3}},
	}
	for i := range tests {
		ps, err := ReadFiles("text", names, layout, tests[i].rank, 2)
		require.NoError(t, err)
		ids := []int64{}
		for _, p := range ps {
			ids = append(ids, p.ID)
		}
		if len(ids) != len(tests[i].ids) {
			t.Errorf("%d) Expected IDs %v, got %v.", i, tests[i].ids, ids)
			continue
		}
		require.Equal(t, tests[i].ids, ids)
	}

	_, err := ReadFiles("hdf5", names, layout, 0, 1)
	require.Error(t, err)
	_, err = Open("gotetra", filepath.Join(dir, "missing.sheet"), 0)
	require.Error(t, err)
}

func TestCheckpoint(t *testing.T) {
	layout := particles.NewLayout(3, 0)
	ps := make([]particles.Particle, 4)
	for i := range ps {
		ps[i] = layout.New()
		ps[i].ID = int64(3 - i)
		ps[i].Pos = [3]float64{0.1 * float64(i), 0.5, 0.9}
		ps[i].Real[0] = float64(i)
	}
	hd := compress.CheckpointHeader{
		ProbHi: [3]float64{1, 1, 1}, Periodic: [3]bool{true, true, true},
		Delta: 1e-6, RealDelta: 1e-6, Step: 4,
	}
	buf := &bytes.Buffer{}
	require.NoError(t, compress.WriteCheckpoint(buf, hd, ps))
	name := filepath.Join(t.TempDir(), "checkpoint.0.nbx")
	require.NoError(t, os.WriteFile(name, buf.Bytes(), 0644))

	f, err := Open("checkpoint", name, 0)
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())
	require.Equal(t, int64(4), f.(*Checkpoint).Header().Step)

	out, err := f.Read(particles.NewLayout(6, 1))
	require.NoError(t, err)
	require.Len(t, out, 4)
	for i := range out {
		require.Equal(t, int64(i), out[i].ID)
		require.InDelta(t, 0.1*float64(3-i), out[i].Pos[0], 2e-6)
		require.InDelta(t, float64(3-i), out[i].Real[0], 2e-6)
	}

	_, err = Open("checkpoint", filepath.Join(t.TempDir(), "missing"), 0)
	require.Error(t, err)
	text := filepath.Join(t.TempDir(), "text.txt")
	require.NoError(t, os.WriteFile(text, []byte("0 0.5 0.5 0.5\n"), 0644))
	_, err = Open("checkpoint", text, 0)
	require.Error(t, err)
}
