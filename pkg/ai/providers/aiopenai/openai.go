package aiopenai

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const providerName = "openai"

type imageService interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// OpenAIProvider generates images with the OpenAI Images API.
type OpenAIProvider struct {
	images imageService
	apiKey string
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = string(openai.ImageModelGPTImage1)
	}

	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(options...)

	return &OpenAIProvider{
		images: &client.Images,
		apiKey: apiKey,
		model:  model,
	}
}

// Generate implements imagegen.Generator
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...imagegen.Option) (imagegen.Result, error) {
	if p.apiKey == "" {
		return imagegen.Result{}, errorRegistry.New(ErrMissingAPIKey)
	}
	if err := imagegen.CheckPrompt(prompt); err != nil {
		return imagegen.Result{}, err
	}

	options := imagegen.Apply(opts...)
	model := p.model
	if options.Model != "" {
		model = options.Model
	}

	resp, err := p.images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:       prompt,
		Model:        openai.ImageModel(model),
		N:            openai.Int(1),
		Size:         sizeFor(options.Width, options.Height),
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return imagegen.Result{}, ParseOpenAIError(err).WithDetail("model", model)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return imagegen.Result{}, errorRegistry.New(ErrNoImage).WithDetail("model", model)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return imagegen.Result{}, errorRegistry.Adopt(err, ErrAPIResponse).WithDetail("model", model)
	}

	meta := map[string]string{}
	if resp.Quality != "" {
		meta["quality"] = string(resp.Quality)
	}
	if resp.Size != "" {
		meta["size"] = string(resp.Size)
	}

	return imagegen.Result{
		Bytes:       data,
		ContentType: "image/png",
		Provider:    providerName,
		Model:       model,
		Metadata:    meta,
	}, nil
}

// sizeFor picks the supported size closest in aspect ratio to width x height.
func sizeFor(width, height int) openai.ImageGenerateParamsSize {
	switch {
	case width <= 0 || height <= 0:
		return openai.ImageGenerateParamsSizeAuto
	case width*2 >= height*3:
		return openai.ImageGenerateParamsSize1536x1024
	case height*2 >= width*3:
		return openai.ImageGenerateParamsSize1024x1536
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}
