package styles

import (
	"context"
	"strings"

	"github.com/tigerphoto/photobooth-backend/internal/clients/genai"
	"github.com/tigerphoto/photobooth-backend/internal/clients/httpfetch"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

// maxPromptLen bounds the prompt text sent to the generative model.
const maxPromptLen = 1000

// Strategy builds the generative request for one style variant.
type Strategy interface {
	Name() string
	Build(ctx context.Context, style *types.Style, prompt string, source genai.InlineImage) (genai.GenerateRequest, error)
}

// Registry maps a style code to its generation strategy, defaulting to the
// base prompt-only strategy for unregistered codes.
type Registry struct {
	strategies map[string]Strategy
	fallback   Strategy
}

func NewRegistry(fetcher httpfetch.Fetcher) *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		fallback:   &defaultStrategy{},
	}
	// The tiger style is guided by its reference artwork in addition to
	// the prompt text.
	r.Register("tiger", &referenceGuidedStrategy{fetcher: fetcher})
	return r
}

func (r *Registry) Register(styleCode string, s Strategy) {
	r.strategies[styleCode] = s
}

func (r *Registry) For(styleCode string) Strategy {
	if s, ok := r.strategies[styleCode]; ok {
		return s
	}
	return r.fallback
}

// PromptFor resolves the prompt text for a style: prompt, then
// description, then name, truncated to a bounded length.
func PromptFor(style *types.Style) string {
	prompt := strings.TrimSpace(style.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(style.Description)
	}
	if prompt == "" {
		prompt = strings.TrimSpace(style.Name)
	}
	if len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
	}
	return prompt
}

type defaultStrategy struct{}

func (defaultStrategy) Name() string { return "default" }

func (defaultStrategy) Build(_ context.Context, _ *types.Style, prompt string, source genai.InlineImage) (genai.GenerateRequest, error) {
	return genai.GenerateRequest{Prompt: prompt, Source: source}, nil
}

// referenceGuidedStrategy attaches the style's reference artwork so the
// model matches its look, not just the prompt text.
type referenceGuidedStrategy struct {
	fetcher httpfetch.Fetcher
}

func (referenceGuidedStrategy) Name() string { return "reference_guided" }

func (s *referenceGuidedStrategy) Build(ctx context.Context, style *types.Style, prompt string, source genai.InlineImage) (genai.GenerateRequest, error) {
	req := genai.GenerateRequest{
		Prompt: prompt + "\nMatch the look of the attached reference image.",
		Source: source,
	}
	if style.ThumbnailURL == "" {
		return req, nil
	}
	data, mime, err := s.fetcher.Fetch(ctx, style.ThumbnailURL)
	if err != nil {
		return genai.GenerateRequest{}, err
	}
	if mime == "" {
		mime = "image/png"
	}
	req.ReferenceImage = &genai.InlineImage{MimeType: mime, Data: data}
	return req, nil
}
