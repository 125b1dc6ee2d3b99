package asr

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"voicepaste/internal/jsonpath"
)

// RetryExhaustedError is returned when every fetch attempt failed.
type RetryExhaustedError struct {
	Attempts int
	MaxRetry int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("exceeded max retries (%d): %v", e.MaxRetry, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// HTTPOptions configures the shared HTTP client.
type HTTPOptions struct {
	Timeout     time.Duration
	EnableHTTP2 bool
	VerifySSL   bool
}

// NewHTTPClient returns a pooled client; VerifySSL=false skips certificate
// verification.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !opts.VerifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if opts.EnableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	return &http.Client{Transport: tr, Timeout: opts.Timeout}
}

// FetchOptions controls result download.
type FetchOptions struct {
	// TextPath locates the transcript inside the result document.
	TextPath       string
	MaxRetry       int
	RetryBaseDelay time.Duration
}

// Fetcher downloads job results and extracts the transcript text.
type Fetcher struct {
	client *http.Client
	opts   FetchOptions
	log    zerolog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, opts FetchOptions, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 1
	}
	return &Fetcher{client: client, opts: opts, log: log}
}

// Fetch downloads uri and returns the extracted text and the raw document.
// Transport errors and non-200 responses are retried with a doubling delay.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, []byte, error) {
	if uri == "" {
		return "", nil, fmt.Errorf("result uri is empty")
	}

	try := 0
	delay := f.opts.RetryBaseDelay
	for {
		try++
		body, err := f.get(ctx, uri)
		if err == nil {
			text, err := jsonpath.Extract(body, f.opts.TextPath)
			if err != nil {
				return "", body, fmt.Errorf("extract transcript: %w", err)
			}
			return text, body, nil
		}

		f.log.Debug().Int("attempt", try).Err(err).Msg("result fetch failed")
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if try >= f.opts.MaxRetry {
			return "", nil, &RetryExhaustedError{Attempts: try, MaxRetry: f.opts.MaxRetry, Err: err}
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (f *Fetcher) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "voicepaste/1.0")

	start := time.Now()
	resp, err := f.client.Do(req)
	f.log.Debug().Dur("elapsed", time.Since(start)).Msg("result request done")
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, preview(body))
	}
	return body, nil
}

// preview renders a response body for error messages.
func preview(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		if len(b) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", b[:maxText], len(b))
		}
		return string(b)
	}
	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
