package aibedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const providerName = "bedrock"

// Titan accepts dimensions in steps of 64 within these bounds.
const (
	minSide  = 320
	maxSide  = 1408
	sideStep = 64
)

type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// ProviderOption configures the Bedrock provider
type ProviderOption func(*BedrockProvider)

// WithDefaultModel sets the default model ID
func WithDefaultModel(model string) ProviderOption {
	return func(p *BedrockProvider) {
		p.defaultModel = model
	}
}

// WithCFGScale sets how strictly the image follows the prompt.
func WithCFGScale(scale float64) ProviderOption {
	return func(p *BedrockProvider) {
		p.cfgScale = scale
	}
}

// BedrockProvider generates images with Amazon Titan Image Generator on Bedrock.
type BedrockProvider struct {
	client       modelInvoker
	defaultModel string
	cfgScale     float64
}

// NewBedrockProvider creates a new Bedrock provider
func NewBedrockProvider(cfg aws.Config, opts ...ProviderOption) *BedrockProvider {
	p := &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(cfg),
		defaultModel: "amazon.titan-image-generator-v2:0",
		cfgScale:     8.0,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

type titanRequest struct {
	TaskType              string           `json:"taskType"`
	TextToImageParams     titanTextParams  `json:"textToImageParams"`
	ImageGenerationConfig titanImageConfig `json:"imageGenerationConfig"`
}

type titanTextParams struct {
	Text string `json:"text"`
}

type titanImageConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	CFGScale       float64 `json:"cfgScale"`
}

type titanResponse struct {
	Images []string `json:"images"`
	Error  *string  `json:"error"`
}

// Generate implements imagegen.Generator
func (p *BedrockProvider) Generate(ctx context.Context, prompt string, opts ...imagegen.Option) (imagegen.Result, error) {
	if err := imagegen.CheckPrompt(prompt); err != nil {
		return imagegen.Result{}, err
	}

	options := imagegen.Apply(opts...)
	model := p.defaultModel
	if options.Model != "" {
		model = options.Model
	}

	body, err := json.Marshal(titanRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: titanTextParams{Text: prompt},
		ImageGenerationConfig: titanImageConfig{
			NumberOfImages: 1,
			Width:          clampSide(options.Width),
			Height:         clampSide(options.Height),
			CFGScale:       p.cfgScale,
		},
	})
	if err != nil {
		return imagegen.Result{}, errorRegistry.Adopt(err, ErrJSONParsing)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return imagegen.Result{}, ParseBedrockError(err).WithDetail("model", model)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return imagegen.Result{}, errorRegistry.Adopt(err, ErrAPIResponse).WithDetail("model", model)
	}
	if resp.Error != nil && *resp.Error != "" {
		if isContentFilter(*resp.Error) {
			return imagegen.Result{}, errorRegistry.NewWithMessage(ErrContentBlocked, *resp.Error).WithDetail("model", model)
		}
		return imagegen.Result{}, errorRegistry.NewWithMessage(ErrAPIResponse, *resp.Error).WithDetail("model", model)
	}
	if len(resp.Images) == 0 || resp.Images[0] == "" {
		return imagegen.Result{}, errorRegistry.New(ErrNoImage).WithDetail("model", model)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return imagegen.Result{}, errorRegistry.Adopt(err, ErrAPIResponse).WithDetail("model", model)
	}

	return imagegen.Result{
		Bytes:       data,
		ContentType: "image/png",
		Provider:    providerName,
		Model:       model,
	}, nil
}

func clampSide(v int) int {
	if v < minSide {
		return minSide
	}
	if v > maxSide {
		return maxSide
	}
	return (v + sideStep/2) / sideStep * sideStep
}
