// Package formdata decodes multipart/form-data request bodies into their
// ordered parts. The decoder works directly on the delimiter framing of the
// wire format: a part body ends exactly where the next framed delimiter
// begins, never at a guessed trailing offset, so binary payloads whose last
// bytes look like CRLF padding survive intact.
package formdata

import (
	"bytes"
	"errors"
	"strings"
)

// ErrMalformed is returned when the body does not follow multipart framing.
var ErrMalformed = errors.New("malformed multipart body")

// Part is one decoded section of a multipart body. File records whether a
// filename attribute was present at all; a present-but-empty Filename marks
// an upload slot the client left blank. Data aliases the request body and is
// valid for the lifetime of the request.
type Part struct {
	Name     string
	Filename string
	File     bool
	Data     []byte
}

// Decode splits body into its parts using the boundary from the request's
// Content-Type. Parts come back in wire order. Any framing violation
// (missing opening delimiter, unterminated header block, missing closing
// delimiter) yields ErrMalformed.
func Decode(body, boundary []byte) ([]Part, error) {
	if len(boundary) == 0 {
		return nil, ErrMalformed
	}
	delim := append([]byte("--"), boundary...)

	cursor, closing, ok := openingDelimiter(body, delim)
	if !ok {
		return nil, ErrMalformed
	}

	parts := []Part{}
	for !closing {
		raw := body[cursor:]
		end, adv, cl, ok := nextDelimiter(raw, delim)
		if !ok {
			return nil, ErrMalformed
		}
		part, err := parsePart(raw[:end])
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		cursor += adv
		closing = cl
	}
	return parts, nil
}

// openingDelimiter locates the first delimiter. It normally sits at offset
// zero; a preamble before it is tolerated as long as the delimiter itself is
// framed by CRLF.
func openingDelimiter(body, delim []byte) (after int, closing, ok bool) {
	if bytes.HasPrefix(body, delim) {
		if a, cl, tail := delimiterTail(body, len(delim)); tail {
			return a, cl, true
		}
	}
	_, after, closing, ok = nextDelimiter(body, delim)
	return after, closing, ok
}

// nextDelimiter finds the next occurrence of CRLF + "--" + boundary in buf
// that is actually a delimiter: followed by the closing "--", or by optional
// linear whitespace and CRLF. Occurrences of the boundary bytes inside part
// data that lack that framing are skipped. end is the offset where the part
// body stops, after the offset just past the full delimiter line.
func nextDelimiter(buf, delim []byte) (end, after int, closing, ok bool) {
	sep := append([]byte("\r\n"), delim...)
	from := 0
	for {
		i := bytes.Index(buf[from:], sep)
		if i < 0 {
			return 0, 0, false, false
		}
		i += from
		if a, cl, tail := delimiterTail(buf, i+len(sep)); tail {
			return i, a, cl, true
		}
		from = i + 2
	}
}

// delimiterTail classifies what follows a matched delimiter at offset j:
// "--" closes the body, padding plus CRLF opens the next part, anything
// else means the match was payload bytes.
func delimiterTail(buf []byte, j int) (after int, closing, ok bool) {
	if j+2 <= len(buf) && buf[j] == '-' && buf[j+1] == '-' {
		return j + 2, true, true
	}
	k := j
	for k < len(buf) && (buf[k] == ' ' || buf[k] == '\t') {
		k++
	}
	if k+2 <= len(buf) && buf[k] == '\r' && buf[k+1] == '\n' {
		return k + 2, false, true
	}
	return 0, false, false
}

// parsePart splits one part into its header block and body at the first
// CRLFCRLF and pulls name and filename out of the Content-Disposition
// header.
func parsePart(raw []byte) (Part, error) {
	h := bytes.Index(raw, []byte("\r\n\r\n"))
	if h < 0 {
		return Part{}, ErrMalformed
	}
	p := Part{Data: raw[h+4:]}
	for _, line := range bytes.Split(raw[:h], []byte("\r\n")) {
		k, v, ok := strings.Cut(string(line), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "Content-Disposition") {
			continue
		}
		p.Name, p.Filename, p.File = parseDisposition(strings.TrimSpace(v))
	}
	return p, nil
}

func parseDisposition(v string) (name, filename string, file bool) {
	for i, seg := range splitParams(v) {
		if i == 0 {
			continue
		}
		k, val, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			val = strings.ReplaceAll(val[1:len(val)-1], `\"`, `"`)
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "name":
			name = val
		case "filename":
			filename = val
			file = true
		}
	}
	return name, filename, file
}

// splitParams splits a header value on semicolons outside quoted strings,
// so a filename containing ";" stays whole.
func splitParams(v string) []string {
	var out []string
	start, quoted := 0, false
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			if !quoted {
				quoted = true
			} else if i == 0 || v[i-1] != '\\' {
				quoted = false
			}
		case ';':
			if !quoted {
				out = append(out, v[start:i])
				start = i + 1
			}
		}
	}
	return append(out, v[start:])
}
