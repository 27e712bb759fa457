package hrana

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// PipelinePath is the fixed endpoint the simulator exercises.
const PipelinePath = "/v2/pipeline"

// BuildRequest wraps a serialized pipeline body in HTTP/1.1 framing. The
// Content-Length header is recomputed from the actual body length on every
// call; a mismatch here would be an unintended fault.
func BuildRequest(host string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "POST %s HTTP/1.1\r\nHost: %s\r\nContent-Length: %d\r\n\r\n",
		PipelinePath, host, len(body))
	b.Write(body)
	return b.Bytes()
}

// FormatResponse frames a response body with status line and headers.
func FormatResponse(status int, contentType string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		status, http.StatusText(status), contentType, len(body))
	b.Write(body)
	return b.Bytes()
}

// ParseRequest parses a raw request buffer as delivered by a single receive.
// No reassembly is performed: a truncated or garbage buffer is an error.
func ParseRequest(buf []byte) (*http.Request, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, errors.New("empty request")
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return nil, nil, fmt.Errorf("malformed request: %w", err)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("request body: %w", err)
	}
	if req.ContentLength >= 0 && int64(len(body)) != req.ContentLength {
		return nil, nil, fmt.Errorf("request body: got %d bytes, Content-Length %d",
			len(body), req.ContentLength)
	}
	return req, body, nil
}

// ParseResponse parses a raw response buffer: status line, headers, body.
func ParseResponse(buf []byte) (*http.Response, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, errors.New("empty response")
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf)), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("response body: %w", err)
	}
	return resp, body, nil
}
