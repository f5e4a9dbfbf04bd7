package translate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const googleProvider = "google_translate"

// Provider performs remote language detection and translation. source may be
// "" to let the provider detect it.
type Provider interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GoogleClient implements Provider against Google's public translate
// endpoint (client=gtx), which needs no API key
type GoogleClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGoogleClient creates a new translation client
func NewGoogleClient(cfg *config.Config) *GoogleClient {
	timeout := config.Seconds(cfg.TranslateTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleClient{
		baseURL:    strings.TrimRight(cfg.TranslateBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect returns the detected source language code
func (g *GoogleClient) Detect(ctx context.Context, text string) (string, error) {
	_, detected, err := g.call(ctx, text, "", "en")
	if err != nil {
		return "", err
	}
	if detected == "" {
		return "", fmt.Errorf("translate: response carried no detected language")
	}
	return detected, nil
}

// Translate returns text rendered in target
func (g *GoogleClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	translated, _, err := g.call(ctx, text, source, target)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(translated) == "" {
		return "", fmt.Errorf("translate: empty translation")
	}
	return translated, nil
}

// call issues one request. The response is a positional array: element 0
// holds [translated, original, ...] segments, element 2 the detected source.
func (g *GoogleClient) call(ctx context.Context, text, source, target string) (string, string, error) {
	start := time.Now()
	translated, detected, err := g.do(ctx, text, source, target)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordProviderCall(googleProvider, outcome, time.Since(start))
	return translated, detected, err
}

func (g *GoogleClient) do(ctx context.Context, text, source, target string) (string, string, error) {
	if source == "" {
		source = "auto"
	}
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_a/single?"+q.Encode(), nil)
	if err != nil {
		return "", "", err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", resilience.NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", "", fmt.Errorf("translate API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	doc, err := jsonvalue.Decode(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("translate: decoding response: %w", err)
	}

	var b strings.Builder
	for _, segment := range doc.Index(0).Items() {
		b.WriteString(segment.Index(0).Text())
	}
	detected, _ := doc.Index(2).Str()
	return b.String(), strings.ToLower(detected), nil
}
