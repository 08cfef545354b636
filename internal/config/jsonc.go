package config

import (
	"strings"
)

// StripJSONComments removes // and /* */ comments from JSONC content
func StripJSONComments(data []byte) []byte {
	input := string(data)
	var out strings.Builder
	out.Grow(len(input))

	inString := false
	for i := 0; i < len(input); {
		c := input[i]

		if c == '"' && (i == 0 || input[i-1] != '\\') {
			inString = !inString
			out.WriteByte(c)
			i++
			continue
		}

		if !inString && c == '/' && i+1 < len(input) {
			switch input[i+1] {
			case '/':
				for i < len(input) && input[i] != '\n' {
					i++
				}
				continue
			case '*':
				i += 2
				for i+1 < len(input) && !(input[i] == '*' && input[i+1] == '/') {
					i++
				}
				if i+1 < len(input) {
					i += 2
				}
				continue
			}
		}

		out.WriteByte(c)
		i++
	}

	return []byte(out.String())
}
