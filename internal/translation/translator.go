package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lingocast/pkg/types"
)

// HTTPTranslator calls an external translation service over HTTP. The
// per-request deadline comes from the caller's context; the cache sets
// it from the configured translation timeout.
type HTTPTranslator struct {
	endpoint string
	client   *http.Client
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
	Error          string `json:"error,omitempty"`
}

func NewHTTPTranslator(endpoint string) *HTTPTranslator {
	return &HTTPTranslator{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if !types.IsSupportedLanguage(targetLang) {
		return "", fmt.Errorf("unsupported target language %q: %w", targetLang, types.ErrInvalidLanguage)
	}

	body, err := json.Marshal(translateRequest{
		Text:           text,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation service returned status %d", resp.StatusCode)
	}

	var parsed translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode translation response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("translation service error: %s", parsed.Error)
	}
	if parsed.TranslatedText == "" {
		return "", fmt.Errorf("translation service returned empty text")
	}

	return parsed.TranslatedText, nil
}
