package output

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxItemChars        = 500
	maxObservationChars = 2000
	tracebackTailLines  = 3
)

// Observation renders outputs into a bounded human-readable string for the
// step log. Display data is omitted; only text-bearing outputs contribute.
func Observation(outputs []Output) string {
	if len(outputs) == 0 {
		return "Code executed successfully, no output."
	}

	var parts []string
	for _, out := range outputs {
		switch out.Type {
		case TypeStream:
			text := strings.TrimSpace(out.Text)
			if text != "" {
				parts = append(parts, fmt.Sprintf("[%s]: %s", out.Name, truncate(text, maxItemChars)))
			}
		case TypeExecuteResult:
			if plain, ok := out.Data["text/plain"]; ok {
				parts = append(parts, fmt.Sprintf("[result]: %s", truncate(fmt.Sprint(plain), maxItemChars)))
			} else {
				parts = append(parts, fmt.Sprintf("[result]: %s", truncate(fmt.Sprint(out.Data), maxItemChars)))
			}
		case TypeError:
			parts = append(parts, fmt.Sprintf("[ERROR]: %s: %s", out.Ename, out.Evalue))
			if len(out.Traceback) > 0 {
				tail := out.Traceback
				if len(tail) > tracebackTailLines {
					tail = tail[len(tail)-tracebackTailLines:]
				}
				parts = append(parts, fmt.Sprintf("[traceback]: %s", truncate(strings.Join(tail, "\n"), maxItemChars)))
			}
		}
	}

	observation := strings.Join(parts, "\n")
	if len(observation) > maxObservationChars {
		observation = truncate(observation, maxObservationChars) + "... (truncated)"
	}
	return observation
}

// truncate caps s at limit bytes, backing up to a rune boundary so the
// result stays valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
