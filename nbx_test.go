package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCmd(out, logs)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), logs.String())
	return out.String()
}

func TestExampleConfig(t *testing.T) {
	require.Equal(t, config.Example, execute(t, "example_config"))
}

func TestCheckAndRun(t *testing.T) {
	name := filepath.Join(t.TempDir(), "nbx.config")
	text := `[Domain]
Cells = 8
MaxGridSize = 4

[Neighbors]
Cutoff = 0.1

[Run]
Ranks = 3
Steps = 2
LogLevel = warn
`
	require.NoError(t, os.WriteFile(name, []byte(text), 0644))

	require.Equal(t, "No errors detected.\n", execute(t, "check", name))

	out := execute(t, "run", name, "--log-level", "error")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		require.True(t, strings.HasPrefix(line, "rank "), "%d) %s", i, line)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	ic := filepath.Join(dir, "ic.txt")
	require.NoError(t, os.WriteFile(ic, []byte(
		"# id x y z vx vy vz\n"+
			"0 0.1 0.5 0.5 0 0 0\n"+
			"1 0.15 0.5 0.5 0 0 0\n"+
			"2 0.7 0.2 0.9 0.01 0 0\n"), 0644))

	name := filepath.Join(dir, "convert.config")
	text := fmt.Sprintf(`[Domain]
Cells = 8
MaxGridSize = 4

[Neighbors]
Cutoff = 0.1

[Run]
Ranks = 1
Steps = 1
InitialConditions = text
InputFiles = %s
LogLevel = warn
`, ic)
	require.NoError(t, os.WriteFile(name, []byte(text), 0644))

	ckpt := filepath.Join(dir, "out", "ic.nbx")
	out := execute(t, "convert", name, ckpt)
	require.Equal(t, fmt.Sprintf("Wrote 3 particles to %s.\n", ckpt), out)

	restart := filepath.Join(dir, "restart.config")
	text = strings.Replace(text, "InitialConditions = text",
		"InitialConditions = checkpoint", 1)
	text = strings.Replace(text, ic, ckpt, 1)
	require.NoError(t, os.WriteFile(restart, []byte(text), 0644))

	out = execute(t, "run", restart)
	require.True(t, strings.HasPrefix(out, "rank 0: 3 particles, 2 pairs"), out)
}
