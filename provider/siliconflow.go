package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultSiliconFlowTimeout = 30 * time.Second

// SiliconFlowConfig holds configuration for the SiliconFlow client.
type SiliconFlowConfig struct {
	APIToken   string
	BaseURL    string // e.g. "https://api.siliconflow.cn/v1"
	LLMModel   string
	ASRModel   string
	TTSModel   string
	TTSVoice   string
	HTTPClient *http.Client

	// LLMModelFunc, when set, is consulted per request instead of
	// LLMModel, so a runtime settings change takes effect immediately.
	LLMModelFunc func() string
}

// SiliconFlow implements Reasoner, Transcriber, and Synthesizer against the
// SiliconFlow API.
type SiliconFlow struct {
	config SiliconFlowConfig
}

// NewSiliconFlow creates a SiliconFlow client with the given config.
func NewSiliconFlow(cfg SiliconFlowConfig) *SiliconFlow {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultSiliconFlowTimeout}
	}
	return &SiliconFlow{config: cfg}
}

type sfChatRequest struct {
	Model    string          `json:"model"`
	Messages []sfChatMessage `json:"messages"`
}

type sfChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sfChatResponse struct {
	Choices []sfChatChoice `json:"choices"`
	Error   *sfError       `json:"error,omitempty"`
}

type sfChatChoice struct {
	Message sfChatMessage `json:"message"`
}

type sfError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends one user prompt to the chat-completions endpoint and
// returns the reply text verbatim.
func (s *SiliconFlow) Complete(ctx context.Context, prompt string) (string, error) {
	model := s.config.LLMModel
	if s.config.LLMModelFunc != nil {
		model = s.config.LLMModelFunc()
	}
	reqBody := sfChatRequest{
		Model:    model,
		Messages: []sfChatMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("siliconflow: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("siliconflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("siliconflow: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("siliconflow: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("siliconflow: API error (status %d): %s", resp.StatusCode, excerpt(body))
	}

	var apiResp sfChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("siliconflow: unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("siliconflow: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("siliconflow: response contained no choices")
	}
	return apiResp.Choices[0].Message.Content, nil
}

type sfTranscription struct {
	Text  string   `json:"text"`
	Error *sfError `json:"error,omitempty"`
}

// Transcribe uploads audio to the transcription endpoint and returns the
// recognized text.
func (s *SiliconFlow) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", fmt.Errorf("siliconflow: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("siliconflow: write audio: %w", err)
	}
	if err := mw.WriteField("model", s.config.ASRModel); err != nil {
		return "", fmt.Errorf("siliconflow: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("siliconflow: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("siliconflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("siliconflow: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("siliconflow: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("siliconflow: ASR error (status %d): %s", resp.StatusCode, excerpt(body))
	}

	var result sfTranscription
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("siliconflow: unmarshal transcription: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("siliconflow: %s: %s", result.Error.Type, result.Error.Message)
	}
	return result.Text, nil
}

type sfSpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Speak renders text through the speech endpoint and returns the audio
// bytes. A non-audio response body is an error even on status 200.
func (s *SiliconFlow) Speak(ctx context.Context, text string) ([]byte, error) {
	reqBody := sfSpeechRequest{
		Model: s.config.TTSModel,
		Input: text,
		Voice: s.config.TTSVoice,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("siliconflow: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/audio/speech", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("siliconflow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)

	resp, err := s.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siliconflow: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("siliconflow: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("siliconflow: TTS error (status %d): %s", resp.StatusCode, excerpt(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "audio/") {
		return nil, fmt.Errorf("siliconflow: TTS returned non-audio content type %q", ct)
	}
	return body, nil
}

func excerpt(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
