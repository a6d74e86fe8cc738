package optimize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ReadFloats parses numbers separated by white space or commas. Text
// after # on a line is ignored.
func ReadFloats(s string) ([]float64, error) {
	var result []float64
	for n, line := range strings.Split(s, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		for _, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return result, fmt.Errorf("line %d: %w", n+1, err)
			}
			result = append(result, x)
		}
	}
	return result, nil
}
