package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

// InlineImage is an image payload passed inline with the generation
// request or returned inline with the response.
type InlineImage struct {
	MimeType string
	Data     []byte
}

// GenerateRequest describes one stylization call: a prompt, the source
// photo, and optionally a style reference image.
type GenerateRequest struct {
	Prompt         string
	Source         InlineImage
	ReferenceImage *InlineImage
}

// GenerateResult carries the first inline image of the model response plus
// the raw response body for audit persistence on the AIJob.
type GenerateResult struct {
	Image       InlineImage
	RawResponse json.RawMessage
}

// Client invokes the external generative image model synchronously. The
// call is single-shot: the transform job is by design not auto-retried, so
// the client does not retry either.
type Client interface {
	GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := utils.GetEnv("GENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing GENAI_API_KEY")
	}
	baseURL := utils.GetEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com", log)
	model := utils.GetEnv("GENAI_MODEL", "gemini-2.5-flash-image", log)

	timeoutSec := utils.GetEnvAsInt("GENAI_TIMEOUT_SECONDS", 120, log)
	if timeoutSec <= 0 {
		timeoutSec = 120
	}

	return &client{
		log:        log.With("service", "GenAIClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *generateInline `json:"inline_data,omitempty"`
}

type generateInline struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContentRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *client) GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	parts := []generatePart{
		{Text: req.Prompt},
		{InlineData: &generateInline{
			MimeType: req.Source.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Source.Data),
		}},
	}
	if req.ReferenceImage != nil {
		parts = append(parts, generatePart{InlineData: &generateInline{
			MimeType: req.ReferenceImage.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.ReferenceImage.Data),
		}})
	}
	var body generateContentRequest
	body.Contents = make([]struct {
		Parts []generatePart `json:"parts"`
	}, 1)
	body.Contents[0].Parts = parts

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Externalf(err, "generative call failed")
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, apperr.Externalf(readErr, "reading generative response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Externalf(fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(raw), 300)), "generative call rejected")
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Externalf(err, "decoding generative response")
	}
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, decErr := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if decErr != nil {
				return nil, apperr.Externalf(decErr, "decoding inline image payload")
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return &GenerateResult{
				Image:       InlineImage{MimeType: mime, Data: data},
				RawResponse: json.RawMessage(raw),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: response had no inline image", apperr.ErrNoImageReturned)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
