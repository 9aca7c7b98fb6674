package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrUnavailable indicates the recognition service could not be reached or
// returned an unusable response. Callers map it to 503.
var ErrUnavailable = errors.New("face recognition service unavailable")

// EncodeResult is the parsed body of POST /encode-face.
type EncodeResult struct {
	Success  bool      `json:"success"`
	Encoding []float64 `json:"encoding"`
	Message  string    `json:"message"`
}

// RecognizeResult is the parsed body of POST /recognize-face. BestIndex is a
// positional offset into the gallery the caller sent; the service knows
// nothing about student identity.
type RecognizeResult struct {
	Success   bool    `json:"success"`
	BestIndex int     `json:"best_index"`
	Distance  float64 `json:"distance"`
	Message   string  `json:"message"`
}

// Client calls the face recognition service. It performs no retries and no
// circuit breaking; every call is one synchronous round trip.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second // face processing can take time
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Encode posts an image to /encode-face. The raw response body is returned
// alongside the parsed result so callers can persist it verbatim.
func (c *Client) Encode(ctx context.Context, image []byte, filename string) (*EncodeResult, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, nil, err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, nil, err
	}
	w.Close()

	raw, err := c.post(ctx, "/encode-face", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, nil, err
	}

	var result EncodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("decode encode-face response: %v: %w", err, ErrUnavailable)
	}
	return &result, raw, nil
}

// Recognize posts a probe image plus the gallery of known encodings to
// /recognize-face. The gallery is serialized as a JSON array of arrays in the
// order given; best_index in the result refers back to that order.
func (c *Client) Recognize(ctx context.Context, image []byte, filename string, known [][]float64) (*RecognizeResult, error) {
	encJSON, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, err
	}
	if err := w.WriteField("known_encodings_json", string(encJSON)); err != nil {
		return nil, err
	}
	w.Close()

	raw, err := c.post(ctx, "/recognize-face", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var result RecognizeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode recognize-face response: %v: %w", err, ErrUnavailable)
	}
	return &result, nil
}

// Health probes the service's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy %s: %w", resp.Status, ErrUnavailable)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read face service response: %v: %w", err, ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("face service error %s: %s: %w", resp.Status, raw, ErrUnavailable)
	}
	return raw, nil
}
