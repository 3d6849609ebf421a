package certificate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Tag is one placeholder occurrence in a template body. Raw is the matched
// token including braces, Path the text between them.
type Tag struct {
	Raw  string
	Path string
}

// Payload holds replacement values keyed by namespace then field. A namespace
// value may be a map[string]any or a map[string]string.
type Payload map[string]any

// ExtractTags returns every placeholder in body in order of appearance,
// duplicates included.
func ExtractTags(body string) []Tag {
	matches := tagPattern.FindAllStringSubmatch(body, -1)
	tags := make([]Tag, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, Tag{Raw: m[0], Path: m[1]})
	}
	return tags
}

// Substitute replaces every occurrence of each tag's raw token with its
// payload value. Missing values become the empty string. Replacement happens
// in one pass over body, so substituted values are never re-scanned for tags.
func Substitute(body string, tags []Tag, payload Payload) string {
	if len(tags) == 0 {
		return body
	}
	seen := make(map[string]struct{}, len(tags))
	pairs := make([]string, 0, 2*len(tags))
	for _, t := range tags {
		if _, ok := seen[t.Raw]; ok {
			continue
		}
		seen[t.Raw] = struct{}{}
		pairs = append(pairs, t.Raw, payload.lookup(t.Path))
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// RenderBody extracts the tags of body and substitutes them from payload.
func RenderBody(body string, payload Payload) string {
	return Substitute(body, ExtractTags(body), payload)
}

func (p Payload) lookup(path string) string {
	ns, field, ok := strings.Cut(path, ".")
	if !ok || p == nil {
		return ""
	}
	switch fields := p[ns].(type) {
	case map[string]any:
		return formatValue(fields[field])
	case map[string]string:
		return fields[field]
	case Payload:
		return formatValue(fields[field])
	default:
		return ""
	}
}

// formatValue renders a payload value. Absent and empty values render empty;
// numeric zero renders "0". Booleans render "1" for true and empty for false.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
