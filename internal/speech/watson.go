package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/jun/voznota/internal/apperr"
)

const (
	DefaultWatsonModel  = "es-ES_BroadbandModel"
	DefaultWatsonIAMURL = "https://iam.cloud.ibm.com/identity/token"
)

// WatsonConfig configures the Watson Speech to Text backend.
type WatsonConfig struct {
	URL     string // service instance URL
	APIKey  string
	IAMURL  string
	Model   string
	Timeout time.Duration
}

// Watson is a Recognizer backed by the IBM Watson Speech to Text REST API.
type Watson struct {
	client *http.Client
	url    string
	model  string
}

// NewWatson returns a Watson recognizer authenticating with an IAM API key.
func NewWatson(cfg WatsonConfig) *Watson {
	if cfg.IAMURL == "" {
		cfg.IAMURL = DefaultWatsonIAMURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultWatsonModel
	}

	base := &http.Client{Timeout: cfg.Timeout}
	src := oauth2.ReuseTokenSource(nil, &iamTokenSource{
		client: base,
		url:    cfg.IAMURL,
		apiKey: cfg.APIKey,
	})

	return &Watson{
		client: &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
			Timeout:   cfg.Timeout,
		},
		url:   strings.TrimRight(cfg.URL, "/"),
		model: cfg.Model,
	}
}

type watsonResponse struct {
	Results []Result `json:"results"`
}

type watsonError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"code_description"`
}

// Recognize posts the audio to /v1/recognize declared as contentType.
func (w *Watson) Recognize(ctx context.Context, audio []byte, contentType string) ([]Result, error) {
	q := url.Values{}
	q.Set("model", w.model)
	q.Set("smart_formatting", "true")
	q.Set("timestamps", "false")
	q.Set("word_confidence", "false")
	q.Set("speaker_labels", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/v1/recognize?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("build watson request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream("watson", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("watson", err)
	}

	if resp.StatusCode >= 400 {
		var we watsonError
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &we) == nil && we.Error != "" {
			msg = we.Error
		}
		switch {
		case isTranscodeMessage(msg):
			return nil, fmt.Errorf("%w: %s", ErrTranscodeMismatch, msg)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, apperr.Upstream("watson", fmt.Errorf("status %d: %s", resp.StatusCode, msg))
		default:
			return nil, fmt.Errorf("watson: status %d: %s", resp.StatusCode, msg)
		}
	}

	var out watsonResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode watson response: %w", err)
	}
	return out.Results, nil
}

// iamTokenSource exchanges an IBM Cloud API key for an IAM access token.
type iamTokenSource struct {
	client *http.Client
	url    string
	apiKey string

	mu sync.Mutex
}

type iamResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

func (s *iamTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "urn:ibm:params:oauth:grant-type:apikey")
	form.Set("apikey", s.apiKey)

	resp, err := s.client.PostForm(s.url, form)
	if err != nil {
		return nil, fmt.Errorf("iam token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("iam token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var ir iamResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("decode iam token: %w", err)
	}
	if ir.AccessToken == "" {
		return nil, fmt.Errorf("iam token response has no access_token")
	}

	tok := &oauth2.Token{AccessToken: ir.AccessToken, TokenType: "Bearer"}
	switch {
	case ir.Expiration > 0:
		tok.Expiry = time.Unix(ir.Expiration, 0)
	case ir.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(ir.ExpiresIn) * time.Second)
	}
	return tok, nil
}
