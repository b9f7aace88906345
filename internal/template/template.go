// Package template implements the ${name} placeholder language embedded in
// stored SQL strings and webhook argument documents.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"restbase/internal/cell"
)

// Marker is the driver-neutral positional marker emitted by Compile. The
// store rewrites it into the active dialect's placeholder form at execution.
const Marker = "?"

var ErrUnterminated = errors.New("unterminated placeholder")

// Compile scans tmpl left to right, extracting every ${name} placeholder.
// It returns the parameter names in placeholder order and the template with
// each placeholder replaced by Marker. Names are not deduplicated: the Nth
// name binds to the Nth marker, so a repeated name needs a value per use.
func Compile(tmpl string) ([]string, string, error) {
	var params []string
	var out strings.Builder
	out.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		start := strings.Index(tmpl[i:], "${")
		if start == -1 {
			out.WriteString(tmpl[i:])
			break
		}
		start += i
		out.WriteString(tmpl[i:start])

		end := strings.IndexByte(tmpl[start+2:], '}')
		if end == -1 {
			return nil, "", fmt.Errorf("%w at offset %d", ErrUnterminated, start)
		}
		name := tmpl[start+2 : start+2+end]
		if err := validateName(name); err != nil {
			return nil, "", fmt.Errorf("placeholder %q at offset %d: %w", name, start, err)
		}

		params = append(params, name)
		out.WriteString(Marker)
		i = start + 2 + end + 1
	}

	return params, out.String(), nil
}

// validateName accepts a bare identifier, an identity-claim name beginning
// with '.', or a dotted path with numeric index segments (res.0.name).
func validateName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	rest := name
	if rest[0] == '.' {
		rest = rest[1:]
		if rest == "" {
			return errors.New("empty claim name")
		}
	}
	for _, seg := range strings.Split(rest, ".") {
		if seg == "" {
			return errors.New("empty path segment")
		}
		if isIndex(seg) {
			continue
		}
		if !isIdentifier(seg) {
			return fmt.Errorf("invalid segment %q", seg)
		}
	}
	return nil
}

func isIndex(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Substitute renders every ${path} placeholder in doc against values. The
// first path segment selects a value; numeric segments index array cells and
// named segments look up object cells. A placeholder that does not resolve
// renders as the empty string so the surrounding document still parses.
func Substitute(doc string, values map[string]cell.Cell) string {
	var out strings.Builder
	out.Grow(len(doc))

	for i := 0; i < len(doc); {
		start := strings.Index(doc[i:], "${")
		if start == -1 {
			out.WriteString(doc[i:])
			break
		}
		start += i
		end := strings.IndexByte(doc[start+2:], '}')
		if end == -1 {
			out.WriteString(doc[start:])
			break
		}
		out.WriteString(doc[i:start])

		path := doc[start+2 : start+2+end]
		if c, ok := Resolve(path, values); ok {
			out.WriteString(render(c))
		}
		i = start + 2 + end + 1
	}

	return out.String()
}

// ClaimKey canonicalizes an identity-claim placeholder name. Stored
// templates spell claims freely (".userId", ".user_id", ".USER_ID"); all
// fold to the fixed SNAKE_CASE claim-table keys by inserting '_' at
// lower-to-upper boundaries before uppercasing.
func ClaimKey(name string) string {
	var out strings.Builder
	out.Grow(len(name) + 2)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' && i > 0 && name[i-1] >= 'a' && name[i-1] <= 'z' {
			out.WriteByte('_')
		}
		out.WriteByte(ch)
	}
	return strings.ToUpper(out.String())
}

// Resolve walks a placeholder path against a value map. Identity-claim
// names (leading '.') are looked up whole under their canonical key;
// everything else is a dotted descent from the named root value.
func Resolve(path string, values map[string]cell.Cell) (cell.Cell, bool) {
	if strings.HasPrefix(path, ".") {
		c, ok := values[ClaimKey(path)]
		return c, ok
	}

	segs := strings.Split(path, ".")
	c, ok := values[segs[0]]
	if !ok {
		return cell.Cell{}, false
	}
	for _, seg := range segs[1:] {
		if isIndex(seg) {
			idx, _ := strconv.Atoi(seg)
			c, ok = c.Elem(idx)
		} else {
			c, ok = c.Field(seg)
		}
		if !ok {
			return cell.Cell{}, false
		}
	}
	return c, true
}

// render flattens a cell to the text form used inside a substituted
// document. Structured cells render as compact JSON, scalars bare.
func render(c cell.Cell) string {
	if c.IsNull() {
		return ""
	}
	switch c.Kind() {
	case cell.KindString:
		return c.Text()
	case cell.KindArray, cell.KindObject, cell.KindJSON:
		b, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
