/*package format handles the two miniature formatting languages used in nbx
config files, e.g.:

   PrintSteps = 0..100 - 63
   ListFile = "lists/step{%04d,step}.{%d,rank}.txt"

Sequence formats are a generic way to specify non-contiguous sequences of
natural numbers. They consist of a series of n tokens separated by "+" or "-".
Each token can be either a number or two numbers separated by "..". E.g.:

  100
  0..100
  0..10 + 100
  0..100 - 63 - 10..20

These strings build up sequences of numbers by adding/removing individual
numbers and contiguous sequences. For example, 1, 2, 3, 15, 16, 17 could be
written as 1..17 - 4..14.

File formats are a combination of fixed text and variables. Variables are
written as {verb,name}, where "verb" is a printf() verb (e.g. %03d) and "name"
is the name of an integer variable supplied by the caller, such as "step" or
"rank".

All spaces around "-", "+", and "," symbols are ignored.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// Any expanded formats which would have more than BigNumber elements are
	// assumed to be bugs.
	BigNumber = 1 << 20
)

// ExpandSequenceFormat expands a sequence format string into a sorted sequence
// of integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	tok, err := tokeniseSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	adds, subs, err := addsSubsSequenceFormat(tok)
	if err != nil {
		return nil, err
	}

	m := map[int]bool{}
	for i := range adds {
		for _, n := range parseSequenceFormatToken(adds[i]) {
			if m[n] {
				return nil, fmt.Errorf("The number %d is added more than "+
					"once.", n)
			}
			m[n] = true
			if len(m) > BigNumber {
				return nil, fmt.Errorf("The sequence '%s' has more than %d "+
					"elements, which is almost certainly a bug.",
					format, BigNumber)
			}
		}
	}

	for i := range subs {
		for _, n := range parseSequenceFormatToken(subs[i]) {
			if !m[n] {
				return nil, fmt.Errorf("The number %d is removed more times "+
					"than it was inserted.", n)
			}
			delete(m, n)
		}
	}

	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// tokeniseSequenceFormat splits a sequence format into numbers, ranges, and
// operators.
func tokeniseSequenceFormat(format string) ([]string, error) {
	clean := strings.ReplaceAll(format, "+", " + ")
	clean = strings.ReplaceAll(clean, "-", " - ")

	tok := strings.Fields(clean)
	if len(tok) == 0 {
		return nil, fmt.Errorf("The format string is empty.")
	}
	return tok, nil
}

func addsSubsSequenceFormat(tok []string) (adds, subs []string, err error) {
	if len(tok) == 0 {
		return nil, nil, fmt.Errorf("The format string is empty.")
	}

	// The leading "+" may be dropped.
	adds, subs = []string{}, []string{}
	start := 0
	if tok[0] != "+" && tok[0] != "-" {
		if err := isSequenceFormatToken(tok[0]); err != nil {
			return nil, nil, fmt.Errorf("Element number 1, '%s', cannot be "+
				"parsed because %s", tok[0], err.Error())
		}
		adds = append(adds, tok[0])
		start = 1
	}

	for i := start; i < len(tok); i += 2 {
		if tok[i] != "-" && tok[i] != "+" {
			return nil, nil, fmt.Errorf("Element number %d, '%s', should be "+
				"a '-' or '+', but isn't.", i+1, tok[i])
		} else if i+1 >= len(tok) {
			return nil, nil, fmt.Errorf("The format string ends in a "+
				"trailing '%s'.", tok[i])
		}

		if err := isSequenceFormatToken(tok[i+1]); err != nil {
			return nil, nil, fmt.Errorf("Element number %d, '%s', cannot be "+
				"parsed because %s", i+2, tok[i+1], err.Error())
		}

		if tok[i] == "+" {
			adds = append(adds, tok[i+1])
		} else {
			subs = append(subs, tok[i+1])
		}
	}

	return adds, subs, nil
}

// isSequenceFormatToken returns a nil error if tok is a valid token for a
// sequence format and an error describing the problem otherwise. The error
// message assumes it is printed after a trailing "because".
func isSequenceFormatToken(tok string) error {
	if len(tok) == 0 {
		return fmt.Errorf("the token is empty.")
	}

	bounds := strings.Split(tok, "..")
	switch len(bounds) {
	case 1:
		if _, err := strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		return nil
	case 2:
		start, err := strconv.Atoi(bounds[0])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[0])
		}
		end, err := strconv.Atoi(bounds[1])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer.", bounds[1])
		}
		if end < start {
			return fmt.Errorf("lower bound %d is larger than upper bound %d.",
				start, end)
		}
		return nil
	}
	return fmt.Errorf("it has more than one '..'.")
}

// parseSequenceFormatToken parses a single token which has already passed
// isSequenceFormatToken and returns the corresponding numbers.
func parseSequenceFormatToken(tok string) []int {
	bounds := strings.Split(tok, "..")
	if len(bounds) == 1 {
		n, _ := strconv.Atoi(tok)
		return []int{n}
	}

	start, _ := strconv.Atoi(bounds[0])
	end, _ := strconv.Atoi(bounds[1])
	out := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, n)
	}
	return out
}

// Selector reports whether an integer is part of a sequence.
type Selector map[int]bool

// NewSelector expands a sequence format into a Selector. The empty string
// selects nothing.
func NewSelector(format string) (Selector, error) {
	sel := Selector{}
	if strings.TrimSpace(format) == "" {
		return sel, nil
	}
	seq, err := ExpandSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	for _, n := range seq {
		sel[n] = true
	}
	return sel, nil
}

// Contains returns true if n is in the sequence.
func (sel Selector) Contains(n int) bool { return sel[n] }

// FileFormat is a parsed file format string.
type FileFormat struct {
	format     string
	separators []string
	verbs      []string
	names      []string
}

// ParseFileFormat parses a file format string of the form
// "text{verb,name}text{verb,name}text".
func ParseFileFormat(format string) (*FileFormat, error) {
	starts, ends, err := fileFormatStartsEnds(format)
	if err != nil {
		return nil, err
	}

	f := &FileFormat{format: format}
	sepStart := 0
	for i := range starts {
		f.separators = append(f.separators, format[sepStart:starts[i]])
		sepStart = ends[i]

		v := format[starts[i]+1 : ends[i]-1]
		tok := strings.Split(v, ",")
		if len(tok) != 2 {
			return nil, fmt.Errorf("The file format '%s' has an invalid "+
				"variable, '{%s}'. Variables should contain a formatting "+
				"verb (e.g. '%%d', '%%03d'), a comma, and the name of the "+
				"variable.", format, v)
		}
		verb, name := strings.TrimSpace(tok[0]), strings.TrimSpace(tok[1])
		if !strings.HasPrefix(verb, "%") || !strings.HasSuffix(verb, "d") {
			return nil, fmt.Errorf("The file format '%s' uses the verb '%s', "+
				"but only integer verbs like '%%d' and '%%04d' are "+
				"allowed.", format, verb)
		} else if name == "" {
			return nil, fmt.Errorf("The variable '{%s}' in file format "+
				"'%s' has no name.", v, format)
		}
		f.verbs = append(f.verbs, verb)
		f.names = append(f.names, name)
	}
	f.separators = append(f.separators, format[sepStart:])

	return f, nil
}

// Names returns the names of every variable in the format, in order.
func (f *FileFormat) Names() []string { return append([]string{}, f.names...) }

// Expand fills in every variable from vars. An error is returned if a
// variable is missing.
func (f *FileFormat) Expand(vars map[string]int) (string, error) {
	sb := &strings.Builder{}
	for i := range f.names {
		sb.WriteString(f.separators[i])
		val, ok := vars[f.names[i]]
		if !ok {
			return "", fmt.Errorf("The file format '%s' uses the variable "+
				"'%s', which is not one of the supported variables.",
				f.format, f.names[i])
		}
		fmt.Fprintf(sb, f.verbs[i], val)
	}
	sb.WriteString(f.separators[len(f.separators)-1])
	return sb.String(), nil
}

// fileFormatStartsEnds returns the indices of the beginning and end of each
// format variable.
func fileFormatStartsEnds(format string) (starts, ends []int, err error) {
	starts, ends = []int{}, []int{}
	nestedLevel := 0

	ending := "Make sure variables in file formats are enclosed in matching " +
		"{ ... } pairs."

	for i := range format {
		if format[i] == '{' {
			nestedLevel++
			starts = append(starts, i)
		} else if format[i] == '}' {
			nestedLevel--
			ends = append(ends, i+1)
		}

		if nestedLevel > 1 {
			end := len(starts) - 1
			return nil, nil, fmt.Errorf("The file format '%s' has nested "+
				"'{' characters at indices %d and %d. %s", format,
				starts[end-1], starts[end], ending)
		} else if nestedLevel < 0 {
			end := len(ends) - 1
			return nil, nil, fmt.Errorf("The file format '%s' has a '}' "+
				"that doesn't come after a '{' character at index %d. %s",
				format, ends[end]-1, ending)
		}
	}

	if len(ends) != len(starts) {
		end := len(starts) - 1
		return nil, nil, fmt.Errorf("The file format '%s' has a '{' without "+
			"a matching '}' at index %d. %s", format, starts[end], ending)
	}

	return starts, ends, nil
}
