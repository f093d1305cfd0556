package formdata

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boundary = "----WebKitFormBoundaryA3xJ9qQ"

type testPart struct {
	headers []string
	data    string
}

func textPart(name, data string) testPart {
	return testPart{
		headers: []string{fmt.Sprintf(`Content-Disposition: form-data; name="%s"`, name)},
		data:    data,
	}
}

func filePart(name, filename, data string) testPart {
	return testPart{
		headers: []string{
			fmt.Sprintf(`Content-Disposition: form-data; name="%s"; filename="%s"`, name, filename),
			"Content-Type: application/octet-stream",
		},
		data: data,
	}
}

func buildBody(b string, parts ...testPart) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteString("--" + b + "\r\n")
		for _, h := range p.headers {
			buf.WriteString(h + "\r\n")
		}
		buf.WriteString("\r\n")
		buf.WriteString(p.data)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + b + "--\r\n")
	return buf.Bytes()
}

func TestDecodeFilesAndPathField(t *testing.T) {
	body := buildBody(boundary,
		textPart("path", "photos/trip"),
		filePart("file", "a.bin", "first payload"),
		filePart("file", "b.txt", "second payload"),
	)

	parts, err := Decode(body, []byte(boundary))
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.Equal(t, "path", parts[0].Name)
	assert.False(t, parts[0].File)
	assert.Equal(t, []byte("photos/trip"), parts[0].Data)

	assert.True(t, parts[1].File)
	assert.Equal(t, "a.bin", parts[1].Filename)
	assert.Equal(t, []byte("first payload"), parts[1].Data)

	assert.True(t, parts[2].File)
	assert.Equal(t, "b.txt", parts[2].Filename)
	assert.Equal(t, []byte("second payload"), parts[2].Data)
}

func TestDecodeBinaryRoundTrip(t *testing.T) {
	junk := make([]byte, 63)
	for i := range junk {
		junk[i] = byte(i*7 + 3)
	}

	// CRLF at every offset of the payload, including first and last.
	for off := 0; off <= len(junk); off++ {
		payload := append(append(append([]byte{}, junk[:off]...), '\r', '\n'), junk[off:]...)
		body := buildBody(boundary, filePart("file", "blob.bin", string(payload)))

		parts, err := Decode(body, []byte(boundary))
		require.NoError(t, err, "offset %d", off)
		require.Len(t, parts, 1)
		assert.Equal(t, payload, parts[0].Data, "offset %d", off)
	}
}

func TestDecodeTrailingSequences(t *testing.T) {
	// Payloads whose tails collide with the framing bytes. A fixed-width
	// trailing trim corrupts every one of these.
	payloads := []string{
		"ends with crlf\r\n",
		"ends with double crlf\r\n\r\n",
		"ends with bare cr\r",
		"ends with bare lf\n",
		"\r\n",
		"\r",
		"",
	}
	for _, payload := range payloads {
		body := buildBody(boundary, filePart("file", "x.bin", payload))
		parts, err := Decode(body, []byte(boundary))
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, []byte(payload), parts[0].Data, "payload %q", payload)
	}
}

func TestDecodePayloadContainingBoundaryBytes(t *testing.T) {
	payloads := []string{
		"raw --" + boundary + " inside, no CRLF framing",
		"A\r\n--" + boundary + "X23\r\nB", // delimiter bytes with an invalid tail
		"--" + boundary + " opens the payload but the tail is text",
	}
	for _, payload := range payloads {
		body := buildBody(boundary, filePart("file", "x.bin", payload))
		parts, err := Decode(body, []byte(boundary))
		require.NoError(t, err)
		require.Len(t, parts, 1, "payload %q", payload)
		assert.Equal(t, []byte(payload), parts[0].Data, "payload %q", payload)
	}
}

func TestDecodeEmptyFilenameSlot(t *testing.T) {
	body := buildBody(boundary,
		filePart("file", "", ""),
		textPart("path", "target"),
	)

	parts, err := Decode(body, []byte(boundary))
	require.NoError(t, err)
	require.Len(t, parts, 2)

	assert.True(t, parts[0].File, "empty filename still counts as a file slot")
	assert.Empty(t, parts[0].Filename)
	assert.False(t, parts[1].File)
}

func TestDecodeFilenameQuoting(t *testing.T) {
	body := buildBody(boundary, testPart{
		headers: []string{`Content-Disposition: form-data; name="file"; filename="semi;colon \"q\".txt"`},
		data:    "x",
	})

	parts, err := Decode(body, []byte(boundary))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, `semi;colon "q".txt`, parts[0].Filename)
}

func TestDecodeDelimiterPadding(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("--" + boundary + "  \t\r\n")
	buf.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"p.bin\"\r\n\r\n")
	buf.WriteString("padded")
	buf.WriteString("\r\n--" + boundary + "--")

	parts, err := Decode(buf.Bytes(), []byte(boundary))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, []byte("padded"), parts[0].Data)
}

func TestDecodePreamble(t *testing.T) {
	body := append([]byte("preamble to ignore\r\n"), buildBody(boundary, textPart("path", "p"))...)

	parts, err := Decode(body, []byte(boundary))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "path", parts[0].Name)
}

func TestDecodeEmptyForm(t *testing.T) {
	parts, err := Decode([]byte("--"+boundary+"--\r\n"), []byte(boundary))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		boundary string
	}{
		{"empty boundary", "anything", ""},
		{"no delimiters", "no multipart content here", boundary},
		{"missing closing delimiter", "--" + boundary + "\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\ndata", boundary},
		{"unterminated header block", "--" + boundary + "\r\nContent-Disposition: form-data; name=\"a\"\r\n--" + boundary + "--", boundary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body), []byte(tt.boundary))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
