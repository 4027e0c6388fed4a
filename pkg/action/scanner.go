package action

import "strings"

// element is one well-formed <name attrs>body</name> region.
type element struct {
	attrs map[string]string
	body  string
}

// scanElements returns every well-formed element called name in text, in
// source order. Regions that are malformed, unterminated, or interrupted by
// another opening tag of the same name are skipped.
func scanElements(text, name string) []element {
	var out []element
	closeTag := "</" + name + ">"
	pos := 0
	for pos < len(text) {
		open := indexOpenTag(text, pos, name)
		if open < 0 {
			break
		}
		attrs, end, ok := scanAttrs(text, open+1+len(name))
		if !ok {
			pos = open + 1
			continue
		}
		bodyStart := end + 1
		closeAt := strings.Index(text[bodyStart:], closeTag)
		if closeAt < 0 {
			// No closing tag remains, so no later element can be complete.
			break
		}
		closeAt += bodyStart
		if next := indexOpenTag(text, bodyStart, name); next >= 0 && next < closeAt {
			// Dangling: a new element opens before this one closes.
			pos = next
			continue
		}
		out = append(out, element{attrs: attrs, body: text[bodyStart:closeAt]})
		pos = closeAt + len(closeTag)
	}
	return out
}

// indexOpenTag finds "<name" at or after from where name is followed by
// whitespace or '>'.
func indexOpenTag(text string, from int, name string) int {
	prefix := "<" + name
	for from < len(text) {
		i := strings.Index(text[from:], prefix)
		if i < 0 {
			return -1
		}
		i += from
		after := i + len(prefix)
		if after < len(text) && (isSpace(text[after]) || text[after] == '>') {
			return i
		}
		from = i + 1
	}
	return -1
}

type attrState int

const (
	beforeName attrState = iota
	inName
	afterName
	beforeValue
	inValue
)

// scanAttrs runs the attribute state machine from i up to the closing '>'.
// It returns the attributes, the index of '>', and whether the tag was
// well formed. Values must be quoted with ' or ".
func scanAttrs(text string, i int) (map[string]string, int, bool) {
	attrs := map[string]string{}
	state := beforeName
	var name strings.Builder
	var value strings.Builder
	var quote byte

	set := func() {
		k := name.String()
		if _, dup := attrs[k]; !dup {
			attrs[k] = value.String()
		}
		name.Reset()
		value.Reset()
	}

	for ; i < len(text); i++ {
		c := text[i]
		switch state {
		case beforeName:
			switch {
			case isSpace(c):
			case c == '>':
				return attrs, i, true
			case isNameChar(c):
				name.WriteByte(c)
				state = inName
			default:
				return nil, 0, false
			}
		case inName:
			switch {
			case isNameChar(c):
				name.WriteByte(c)
			case c == '=':
				state = beforeValue
			case isSpace(c):
				state = afterName
			case c == '>':
				set()
				return attrs, i, true
			default:
				return nil, 0, false
			}
		case afterName:
			switch {
			case isSpace(c):
			case c == '=':
				state = beforeValue
			case c == '>':
				set()
				return attrs, i, true
			case isNameChar(c):
				// Previous attribute had no value.
				set()
				name.WriteByte(c)
				state = inName
			default:
				return nil, 0, false
			}
		case beforeValue:
			switch {
			case isSpace(c):
			case c == '"' || c == '\'':
				quote = c
				state = inValue
			default:
				return nil, 0, false
			}
		case inValue:
			if c == quote {
				set()
				state = beforeName
				continue
			}
			value.WriteByte(c)
		}
	}
	return nil, 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == ':'
}
