package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caresight/docguard/internal/logger"
)

const maxClassifierResponse = 10 << 20 // 10 MB

// ModelDetector performs PII detection through an external classifier model.
// It has higher recall than the pattern detector but is non-deterministic and
// may be unavailable; callers compose it with a pattern fallback (see
// FallbackChain).
type ModelDetector struct {
	endpoint  string
	model     string
	threshold float32
	timeout   time.Duration
	client    *http.Client
	logger    *logger.Logger
}

// ModelConfig contains classifier endpoint configuration.
type ModelConfig struct {
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model         string        `yaml:"model" mapstructure:"model"`
	ConfidenceMin float32       `yaml:"confidence_min" mapstructure:"confidence_min"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// NewModelDetector creates a model-based detector for the given classifier
// endpoint.
func NewModelDetector(cfg ModelConfig, log *logger.Logger) *ModelDetector {
	return &ModelDetector{
		endpoint:  strings.TrimSuffix(cfg.Endpoint, "/") + "/api/generate",
		model:     cfg.Model,
		threshold: cfg.ConfidenceMin,
		timeout:   cfg.Timeout,
		client:    &http.Client{},
		logger:    log,
	}
}

// Name identifies this detector in logs and audit metadata.
func (d *ModelDetector) Name() string { return "model" }

type classifierRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type classifierResponse struct {
	Response string `json:"response"`
}

type classifierDetection struct {
	Original   string   `json:"original"`
	Category   Category `json:"category"`
	Confidence float32  `json:"confidence"`
}

// Detect sends the text to the classifier and maps its findings back to byte
// spans. The caller's context bounds the call; on top of that a configured
// per-call timeout applies. Findings below the confidence threshold and
// findings for text the classifier hallucinated are dropped.
func (d *ModelDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	detections := make([]Detection, 0)
	if text == "" {
		return detections, nil
	}

	prompt := fmt.Sprintf(`Analyze the following text for PII (personally identifiable information).
Return ONLY a JSON array of detections. Each item must have:
- "original": the exact text found
- "category": one of: email, phone, bsn, postal_code, date_of_birth, medical_record_number, iban, name, address
- "confidence": float 0.0-1.0

Text to analyze:
%s

Return ONLY the JSON array, no explanation.`, text)

	reqBody, err := json.Marshal(classifierRequest{
		Model:  d.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClassifierResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier response: %w", err)
	}

	var classifierResp classifierResponse
	if err := json.Unmarshal(body, &classifierResp); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	found, err := parseClassifierDetections(classifierResp.Response)
	if err != nil {
		return nil, err
	}

	for _, f := range found {
		if f.Confidence < d.threshold || f.Original == "" {
			continue
		}
		// Map every occurrence of the reported span back to offsets.
		offset := 0
		for {
			idx := strings.Index(text[offset:], f.Original)
			if idx < 0 {
				break
			}
			start := offset + idx
			detections = append(detections, Detection{
				Category:   f.Category,
				Match:      f.Original,
				Start:      start,
				End:        start + len(f.Original),
				Confidence: f.Confidence,
			})
			offset = start + len(f.Original)
		}
	}

	return detections, nil
}

// parseClassifierDetections extracts the JSON array from the model's text
// response, tolerating prose around it.
func parseClassifierDetections(raw string) ([]classifierDetection, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in classifier response")
	}

	var detections []classifierDetection
	if err := json.Unmarshal([]byte(raw[start:end+1]), &detections); err != nil {
		return nil, fmt.Errorf("failed to parse classifier detections: %w", err)
	}
	return detections, nil
}
