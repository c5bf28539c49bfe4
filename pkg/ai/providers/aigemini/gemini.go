package aigemini

import (
	"context"
	"os"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"google.golang.org/genai"
)

const providerName = "gemini"

// ProviderOption configures the Gemini provider
type ProviderOption func(*GeminiProvider)

// WithVertexAI configures the provider to use Vertex AI backend
func WithVertexAI(project, location string) ProviderOption {
	return func(p *GeminiProvider) {
		p.project = project
		p.location = location
		p.useVertexAI = true
	}
}

// WithImageModel sets the default image model
func WithImageModel(model string) ProviderOption {
	return func(p *GeminiProvider) {
		if model != "" {
			p.imageModel = model
		}
	}
}

// GeminiProvider generates images with Gemini's native image output.
type GeminiProvider struct {
	models      contentGenerator
	apiKey      string
	project     string
	location    string
	useVertexAI bool
	imageModel  string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...ProviderOption) (*GeminiProvider, error) {
	p := &GeminiProvider{
		apiKey:     apiKey,
		imageModel: "gemini-2.5-flash-image",
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.apiKey == "" {
		p.apiKey = os.Getenv("GEMINI_API_KEY")
	}

	config := &genai.ClientConfig{}

	if p.useVertexAI {
		config.Backend = genai.BackendVertexAI
		config.Project = p.project
		config.Location = p.location
	} else {
		if p.apiKey == "" {
			return nil, errorRegistry.New(ErrMissingAPIKey)
		}
		config.APIKey = p.apiKey
		config.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrClientInit, err)
	}

	p.models = client.Models
	return p, nil
}

// Generate implements imagegen.Generator
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts ...imagegen.Option) (imagegen.Result, error) {
	if err := imagegen.CheckPrompt(prompt); err != nil {
		return imagegen.Result{}, err
	}

	options := imagegen.Apply(opts...)
	model := p.imageModel
	if options.Model != "" {
		model = options.Model
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := p.models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return imagegen.Result{}, ParseGeminiError(err).WithDetail("model", model)
	}

	return extractImage(resp, model)
}

func extractImage(resp *genai.GenerateContentResponse, model string) (imagegen.Result, error) {
	if resp == nil {
		return imagegen.Result{}, errorRegistry.New(ErrNoImage).WithDetail("model", model)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return imagegen.Result{}, errorRegistry.New(ErrContentBlocked).
			WithDetail("reason", string(resp.PromptFeedback.BlockReason))
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			meta := map[string]string{}
			if cand.FinishReason != "" {
				meta["finish_reason"] = string(cand.FinishReason)
			}
			if resp.ModelVersion != "" {
				meta["model_version"] = resp.ModelVersion
			}
			contentType := part.InlineData.MIMEType
			if contentType == "" {
				contentType = "image/png"
			}
			return imagegen.Result{
				Bytes:       part.InlineData.Data,
				ContentType: contentType,
				Provider:    providerName,
				Model:       model,
				Metadata:    meta,
			}, nil
		}
	}

	return imagegen.Result{}, errorRegistry.New(ErrNoImage).WithDetail("model", model)
}
