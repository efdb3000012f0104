package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// sseDecoder yields the data payload of each server-sent event.
type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next joins multi-line `data:` fields with "\n" and skips comments and
// other fields. It returns io.EOF once the stream is drained.
func (d *sseDecoder) Next() ([]byte, error) {
	var lines [][]byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				lines = appendData(lines, line)
			}
			if len(lines) > 0 {
				return bytes.Join(lines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(lines) == 0 {
				continue
			}
			return bytes.Join(lines, []byte("\n")), nil
		}
		if line[0] == ':' {
			continue
		}
		lines = appendData(lines, line)
	}
}

func appendData(dst [][]byte, line []byte) [][]byte {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return dst
	}
	val := line[len("data:"):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}

// newLineScanner reads newline-delimited JSON with room for long lines.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)
	return sc
}

// request is a JSON call against one provider.
type request struct {
	provider string
	client   *http.Client
	method   string
	url      string
	headers  map[string]string
	body     any
}

// do sends the request and returns the response on 2xx; the caller closes it.
func (r request) do(ctx context.Context) (*http.Response, error) {
	var rd io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", r.provider, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, rd)
	if err != nil {
		return nil, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(r.provider, resp)
	}
	return resp, nil
}

// decode sends the request and decodes a JSON response into out.
func (r request) decode(ctx context.Context, out any) error {
	resp, err := r.do(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.provider, err)
	}
	return nil
}
