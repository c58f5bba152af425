package snapio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/phil-mansfield/neighbors/lib/particles"
)

// TextConfig contains the information needed to parse particle text files.
type TextConfig struct {
	Comment     byte // Character used to start comments.
	SkipLines   int  // Number of lines to skip at the start of the file.
	MaxLineSize int  // Largest possible line size.
}

// DefaultTextConfig reads '#'-commented files with no header.
var DefaultTextConfig = TextConfig{
	Comment:     '#',
	MaxLineSize: 1 << 20,
}

// Text is a whitespace-separated text file with one particle per line. Lines
// have the columns "id x y z" or "id x y z vx vy vz".
type Text struct {
	fileName string
	config   TextConfig
	n        int
}

var _ File = &Text{}

// NewText opens a text file and counts its particles.
func NewText(fileName string, config TextConfig) (*Text, error) {
	t := &Text{fileName: fileName, config: config}
	err := t.scan(func(line int, tok []string) error {
		t.n++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Text) Len() int { return t.n }

func (t *Text) Read(layout particles.Layout) ([]particles.Particle, error) {
	out := make([]particles.Particle, 0, t.n)
	err := t.scan(func(line int, tok []string) error {
		if len(tok) != 4 && len(tok) != 7 {
			return fmt.Errorf("Line %d of %s has %d columns, but particle "+
				"lines need 4 (id x y z) or 7 (id x y z vx vy vz).",
				line, t.fileName, len(tok))
		}
		id, err := strconv.ParseInt(tok[0], 10, 64)
		if err != nil {
			return fmt.Errorf("Line %d of %s has the id '%s', which is not "+
				"an integer.", line, t.fileName, tok[0])
		}
		var xv [6]float64
		for i := 1; i < len(tok); i++ {
			xv[i-1], err = strconv.ParseFloat(tok[i], 64)
			if err != nil {
				return fmt.Errorf("Column %d on line %d of %s, '%s', is not "+
					"a number.", i+1, line, t.fileName, tok[i])
			}
		}
		out = append(out, newParticle(layout, id,
			[3]float64{xv[0], xv[1], xv[2]}, [3]float64{xv[3], xv[4], xv[5]}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan calls fn on the fields of every non-empty, uncommented line.
func (t *Text) scan(fn func(line int, tok []string) error) error {
	f, err := os.Open(t.fileName)
	if err != nil {
		return fmt.Errorf("The file %s cannot be opened. The system error "+
			"is: \"%s\"", t.fileName, err.Error())
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), t.config.MaxLineSize)
	for line := 1; sc.Scan(); line++ {
		if line <= t.config.SkipLines {
			continue
		}
		text := sc.Text()
		if i := strings.IndexByte(text, t.config.Comment); i >= 0 {
			text = text[:i]
		}
		tok := strings.Fields(text)
		if len(tok) == 0 {
			continue
		}
		if err := fn(line, tok); err != nil {
			return err
		}
	}
	return sc.Err()
}
