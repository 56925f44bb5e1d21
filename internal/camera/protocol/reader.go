package protocol

import (
	"bufio"
	"io"
	"log/slog"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sink receives body bytes in arrival order. The slice is only valid for the
// duration of the call.
type Sink func(chunk []byte)

// Framing is how an HTTP response body is delimited.
type Framing int

const (
	FramingContinuous Framing = iota
	FramingChunked
	FramingFixed
)

func (f Framing) String() string {
	switch f {
	case FramingChunked:
		return "chunked"
	case FramingFixed:
		return "fixed"
	default:
		return "continuous"
	}
}

// ResponseHeader is the parsed head of an HTTP response.
type ResponseHeader struct {
	StatusLine    string
	StatusCode    int
	Header        textproto.MIMEHeader
	ContentLength int64 // -1 when absent
}

// Framing picks the body reader: chunked wins over Content-Length, and a
// missing or zero length means read until EOF.
func (h *ResponseHeader) Framing() Framing {
	for _, te := range h.Header.Values("Transfer-Encoding") {
		if strings.Contains(strings.ToLower(te), "chunked") {
			return FramingChunked
		}
	}
	if h.ContentLength > 0 {
		return FramingFixed
	}
	return FramingContinuous
}

// ReadResponseHeader consumes the status line and headers up to the blank
// line. A status line that does not parse is kept verbatim with code 0.
func ReadResponseHeader(br *bufio.Reader) (*ResponseHeader, error) {
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, errors.Wrap(err, "read status line")
	}
	hdr := &ResponseHeader{StatusLine: line, ContentLength: -1}
	if fields := strings.Fields(line); len(fields) >= 2 && strings.HasPrefix(fields[0], "HTTP/") {
		if code, err := strconv.Atoi(fields[1]); err == nil {
			hdr.StatusCode = code
		}
	}

	mime, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read headers")
	}
	hdr.Header = mime
	if cl := mime.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil {
			hdr.ContentLength = n
		}
	}
	return hdr, nil
}

// ReadRaw copies r into sink using a buffer of bufSize bytes until a read
// fails. It always returns a non-nil error; io.EOF means the peer finished.
func ReadRaw(r io.Reader, bufSize int, sink Sink) error {
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sink(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

// ReadHTTP parses the response head from r and then streams the body with
// the chunked, fixed-length or continuous reader.
func ReadHTTP(r io.Reader, bufSize int, log *slog.Logger, sink Sink) error {
	br := bufio.NewReaderSize(r, bufSize)

	hdr, err := ReadResponseHeader(br)
	if err != nil {
		return err
	}

	framing := hdr.Framing()
	log.Debug("HTTP response header received",
		"status", hdr.StatusLine, "framing", framing, "content_length", hdr.ContentLength)
	if hdr.StatusCode != 0 && (hdr.StatusCode < 200 || hdr.StatusCode > 299) {
		log.Warn("Camera answered with non-success status, reading body anyway", "status", hdr.StatusLine)
	}

	return ReadBody(br, hdr, bufSize, sink)
}

// ReadBody streams an HTTP body framed as described by hdr.
func ReadBody(br *bufio.Reader, hdr *ResponseHeader, bufSize int, sink Sink) error {
	var body io.Reader
	switch hdr.Framing() {
	case FramingChunked:
		body = httputil.NewChunkedReader(br)
	case FramingFixed:
		body = io.LimitReader(br, hdr.ContentLength)
	default:
		body = br
	}
	return ReadRaw(body, bufSize, sink)
}
