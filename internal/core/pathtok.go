package core

import "strings"

var nameEscaper = strings.NewReplacer(`\`, `\\`, "/", `\/`, ":", `\:`)

// EscapeName quotes the separators in a node name so that Tokenize reads it
// back as one segment.
func EscapeName(name string) string {
	return nameEscaper.Replace(name)
}

// utf8Len returns the byte length of the sequence introduced by lead.
// Bytes that cannot start a sequence are treated as single opaque bytes.
func utf8Len(lead byte) int {
	switch {
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	}
	return 1
}

// Tokenize splits a remote path into segments.
//
// An unescaped '/' separates segments. A single unescaped ':' ending the
// first segment marks a namespace switch ("user:path"); any ':' after a
// segment has already been produced is malformed. '\' makes the next
// character literal; a trailing '\' is dropped. Multi-byte UTF-8 sequences
// are copied whole and a truncated one at the end is malformed.
//
// A leading empty segment means the path is absolute, so "/" yields ["", ""].
func Tokenize(path string) (segments []string, namespaceSwitch bool, err error) {
	var cur []byte
	n := len(path)

	for i := 0; i < n; i++ {
		c := path[i]

		if c == '\\' {
			if i+1 >= n {
				break
			}
			i++
			c = path[i]
			if c < 0x80 {
				cur = append(cur, c)
				continue
			}
		}

		if c >= 0x80 {
			l := utf8Len(c)
			if i+l > n {
				return nil, false, opErr("tokenize", path, ErrMalformedPath)
			}
			cur = append(cur, path[i:i+l]...)
			i += l - 1
			continue
		}

		switch c {
		case '/':
			segments = append(segments, string(cur))
			cur = cur[:0]
		case ':':
			if len(segments) > 0 {
				return nil, false, opErr("tokenize", path, ErrMalformedPath)
			}
			segments = append(segments, string(cur))
			cur = cur[:0]
			namespaceSwitch = true
		default:
			cur = append(cur, c)
		}
	}

	segments = append(segments, string(cur))
	return segments, namespaceSwitch, nil
}
