package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

// Classification is the contract the AI collaborator reports back: an intent
// read of the session plus whether it thinks a human should take over. The
// model's reasoning is a black box to this service.
type Classification struct {
	Intent   string `json:"intent"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Escalate bool   `json:"escalate"`
	Reason   string `json:"reason,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, transcript []types.TranscriptTurn) (*Classification, error)
}

type httpClassifier struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHTTPClassifier(log *logger.Logger) (Classifier, error) {
	apiKey := os.Getenv("AI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}

	baseURL := os.Getenv("AI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("AI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeoutSec := 20
	if v := os.Getenv("AI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &httpClassifier{
		log:        log.With("service", "HTTPClassifier"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

const classifySystemPrompt = `You triage support chats. Given the transcript, reply with JSON:
{"intent": string, "category": string, "summary": string, "escalate": bool, "reason": string}.
Set escalate=true only when the assistant cannot resolve the request on its own.`

func (c *httpClassifier) Classify(ctx context.Context, transcript []types.TranscriptTurn) (*Classification, error) {
	var sb strings.Builder
	for _, turn := range transcript {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": classifySystemPrompt},
			{"role": "user", "content": sb.String()},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classifier http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	var classification Classification
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &classification); err != nil {
		return nil, fmt.Errorf("classifier returned malformed JSON: %w", err)
	}
	return &classification, nil
}
