package vault

import (
	"bytes"
)

const fence = "---"

// splitFrontmatter separates a leading YAML block from the note body.
// The block must open on the first line with "---" and close with a line
// holding "---" or "...". Without a complete block the whole input is body.
func splitFrontmatter(content []byte) (fm, body []byte, ok bool) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	first, rest, found := cutLine(content)
	if !found || string(bytes.TrimRight(first, " \t")) != fence {
		return nil, content, false
	}

	offset := 0
	for {
		line, next, more := cutLine(rest[offset:])
		trimmed := string(bytes.TrimRight(line, " \t"))
		if trimmed == fence || trimmed == "..." {
			return rest[:offset], next, true
		}
		if !more {
			return nil, content, false
		}
		offset = len(rest) - len(next)
	}
}

// cutLine returns the first line of b without its terminator (LF or CRLF),
// the remainder, and whether a terminator was found.
func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	line = b[:i]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, b[i+1:], true
}

// joinFrontmatter renders a note from YAML and body. Empty YAML drops the
// block entirely.
func joinFrontmatter(yamlBlock, body []byte) []byte {
	if len(bytes.TrimSpace(yamlBlock)) == 0 {
		return body
	}
	var buf bytes.Buffer
	buf.Grow(len(yamlBlock) + len(body) + 8)
	buf.WriteString(fence + "\n")
	buf.Write(yamlBlock)
	if !bytes.HasSuffix(yamlBlock, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(fence + "\n")
	buf.Write(body)
	return buf.Bytes()
}
