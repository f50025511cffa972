package messaging

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render replaces {{key}} tokens with vars[key]. Unknown keys are left in
// place so a typo in a template is visible in the sent message.
func Render(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		key := placeholderPattern.FindStringSubmatch(token)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return token
	})
}

// Placeholders lists the distinct keys used in text, in order of first use.
func Placeholders(text string) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

func mergeVars(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
