package livecheck

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"
)

// gjsonSpecial are characters with meaning in gjson paths that must be
// escaped when they appear in a field name.
const gjsonSpecial = `\*?|#@!=<>%`

// toGJSONPath converts a dotted path with bracket indexes, such as
// "notes[0].version", into gjson syntax ("notes.0.version").
func toGJSONPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidJSONPath)
	}

	var parts []string
	remaining := path
	for remaining != "" {
		remaining = strings.TrimPrefix(remaining, ".")
		if remaining == "" {
			break
		}
		if remaining[0] == '[' {
			return "", fmt.Errorf("%w: unexpected '[' at start", ErrInvalidJSONPath)
		}

		end := strings.IndexAny(remaining, ".[")
		if end < 0 {
			end = len(remaining)
		}
		parts = append(parts, escapeGJSON(remaining[:end]))
		remaining = remaining[end:]

		for strings.HasPrefix(remaining, "[") {
			closeBracket := strings.Index(remaining, "]")
			if closeBracket == -1 {
				return "", fmt.Errorf("%w: unclosed bracket", ErrInvalidJSONPath)
			}
			indexStr := remaining[1:closeBracket]
			index, err := strconv.Atoi(indexStr)
			if err != nil {
				return "", fmt.Errorf("%w: invalid array index %q", ErrInvalidJSONPath, indexStr)
			}
			if index < 0 {
				return "", fmt.Errorf("%w: negative array index", ErrInvalidJSONPath)
			}
			parts = append(parts, strconv.Itoa(index))
			remaining = remaining[closeBracket+1:]
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrInvalidJSONPath)
	}
	return strings.Join(parts, "."), nil
}

func escapeGJSON(field string) string {
	if !strings.ContainsAny(field, gjsonSpecial) {
		return field
	}
	var b strings.Builder
	for _, r := range field {
		if strings.ContainsRune(gjsonSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// readJSONField returns the scalar at path. Objects, arrays and null
// count as missing.
func readJSONField(url string, body []byte, path string) (string, *ResolutionError) {
	if !gjson.ValidBytes(body) {
		return "", decodeError(url, fmt.Errorf("failed to parse JSON"))
	}
	gpath, err := toGJSONPath(path)
	if err != nil {
		return "", configError(err)
	}

	res := gjson.GetBytes(body, gpath)
	switch res.Type {
	case gjson.String:
		return res.Str, nil
	case gjson.Number:
		return res.Raw, nil
	case gjson.True, gjson.False:
		return res.String(), nil
	case gjson.JSON:
		return "", noMatchError(url, fmt.Errorf("%w: value at %q is not a scalar", ErrJSONPathNotFound, path))
	default:
		return "", noMatchError(url, fmt.Errorf("%w: %q", ErrJSONPathNotFound, path))
	}
}

// matchVersion applies re to text and returns capture group 1 of the
// match selected by listing. Matches with an empty group are skipped.
func matchVersion(re *regexp.Regexp, text string, listing Listing) (string, bool) {
	var found []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 && m[1] != "" {
			found = append(found, m[1])
		}
	}
	if len(found) == 0 {
		return "", false
	}
	if listing == ListingNewestLast {
		return found[len(found)-1], true
	}
	return found[0], true
}

// narrowHTML returns the text of every element matching selector or
// xpath, one element per line, in document order.
func narrowHTML(url string, body []byte, selector, xp string) (string, *ResolutionError) {
	var texts []string

	if selector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return "", decodeError(url, fmt.Errorf("failed to parse HTML: %w", err))
		}
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			texts = append(texts, s.Text())
		})
	} else {
		doc, err := htmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return "", decodeError(url, fmt.Errorf("failed to parse HTML: %w", err))
		}
		nodes, err := htmlquery.QueryAll(doc, xp)
		if err != nil {
			return "", configErrorf("invalid XPath expression %q: %v", xp, err)
		}
		for _, n := range nodes {
			texts = append(texts, htmlquery.InnerText(n))
		}
	}

	if len(texts) == 0 {
		return "", noMatchError(url, fmt.Errorf("%w: %s%s", ErrNoElementFound, selector, xp))
	}
	return strings.Join(texts, "\n"), nil
}
