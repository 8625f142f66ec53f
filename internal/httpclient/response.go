package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const maxBodyBytes = 4 << 20

// CaptchaRequiredMessage is the platform's transient rejection that clears on
// retry.
const CaptchaRequiredMessage = `"captchaToken" is required`

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Message returns the body's "message" field when present.
func (r *Response) Message() string {
	if r == nil {
		return ""
	}
	return extractMessage(r.Body)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// CaptchaRequired reports whether the platform asked for a captcha token.
func (e *StatusError) CaptchaRequired() bool {
	return strings.Contains(e.Message, CaptchaRequiredMessage) ||
		bytes.Contains(e.Body, []byte(`\"captchaToken\" is required`)) ||
		bytes.Contains(e.Body, []byte(CaptchaRequiredMessage))
}

func newStatusError(status int, body []byte) *StatusError {
	msg := extractMessage(body)
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(body)), 256)
	}
	return &StatusError{StatusCode: status, Message: msg, Body: body}
}

func extractMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Message) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Message, &text); err == nil {
		return text
	}
	var list []string
	if err := json.Unmarshal(envelope.Message, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(envelope.Message)
}

// readBody reads at most maxBodyBytes and undoes Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(io.LimitReader(fr, maxBodyBytes))
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(io.LimitReader(dec, maxBodyBytes))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func truncate(text string, limit int) string {
	if len([]rune(text)) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
