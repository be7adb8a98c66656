package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const maxFetchRetries = 2

// retryableError indicates a transient download failure.
type retryableError struct {
	statusCode int
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d", e.statusCode)
}

// newHTTPClient returns a pooled client for attachment downloads.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// attachmentFetcher downloads attachment bodies so they can be re-uploaded.
type attachmentFetcher struct {
	client  *http.Client
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
}

func newAttachmentFetcher(client *http.Client, logger *slog.Logger) *attachmentFetcher {
	return &attachmentFetcher{client: client, logger: logger, backoff: fetchBackoff}
}

// fetchBackoff grows quadratically with jitter.
func fetchBackoff(attempt int) time.Duration {
	base := time.Duration(attempt*attempt) * 500 * time.Millisecond
	return base + time.Duration(rand.Int64N(int64(base/2+1)))
}

// Files downloads every attachment in order. Any failure aborts the whole set.
func (f *attachmentFetcher) Files(ctx context.Context, attachments []domain.Attachment) ([]*discordgo.File, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	files := make([]*discordgo.File, 0, len(attachments))
	for _, a := range attachments {
		data, err := f.fetch(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("fetch attachment %s: %w", a.Filename, err)
		}
		files = append(files, &discordgo.File{
			Name:        a.Filename,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(data),
		})
	}
	return files, nil
}

// fetch retries network failures, 5xx and 429 responses.
func (f *attachmentFetcher) fetch(ctx context.Context, a domain.Attachment) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		if attempt > 0 {
			backoff := f.backoff(attempt)
			f.logger.Debug("retrying attachment download", "file", a.Filename, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &retryableError{statusCode: resp.StatusCode}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}

	return nil, fmt.Errorf("download failed after %d retries: %w", maxFetchRetries, lastErr)
}
