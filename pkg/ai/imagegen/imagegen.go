// Package imagegen defines the image generation capability used by the
// render pipeline and a fallback chain over several providers.
package imagegen

import (
	"context"
	"net/http"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/logx"
)

var imagegenErrors = errx.NewRegistry("IMAGEGEN")

var (
	ErrEmptyPrompt       = imagegenErrors.Register("EMPTY_PROMPT", errx.TypeValidation, http.StatusBadRequest, "Prompt cannot be empty")
	ErrNoImage           = imagegenErrors.Register("NO_IMAGE", errx.TypeExternal, http.StatusBadGateway, "Provider returned no image")
	ErrNoProviders       = imagegenErrors.Register("NO_PROVIDERS", errx.TypeInternal, http.StatusServiceUnavailable, "No image providers configured")
	ErrProvidersFailed   = imagegenErrors.Register("PROVIDERS_FAILED", errx.TypeExternal, http.StatusBadGateway, "Every image provider failed")
	ErrProvidersRejected = imagegenErrors.Register("PROVIDERS_REJECTED", errx.TypeValidation, http.StatusUnprocessableEntity, "Every image provider rejected the request")
)

// Options tune one generation.
type Options struct {
	Model  string
	Width  int
	Height int
}

// Option is a functional option for Generate.
type Option func(*Options)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithSize requests output dimensions. Providers round to the nearest size they support.
func WithSize(width, height int) Option {
	return func(o *Options) {
		o.Width = width
		o.Height = height
	}
}

// Apply builds Options from opts with defaults.
func Apply(opts ...Option) Options {
	o := Options{Width: 1024, Height: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Result is a generated image.
type Result struct {
	Bytes       []byte
	ContentType string
	Provider    string
	Model       string
	Metadata    map[string]string
}

// Generator produces an image from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts ...Option) (Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts ...Option) (Result, error) {
	return f(ctx, prompt, opts...)
}

// CheckPrompt rejects blank prompts.
func CheckPrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return imagegenErrors.New(ErrEmptyPrompt)
	}
	return nil
}

// Fallback tries its generators in order and returns the first success.
type Fallback struct {
	generators []Generator
}

// NewFallback chains generators; the first is the primary.
func NewFallback(generators ...Generator) *Fallback {
	return &Fallback{generators: generators}
}

// Len returns the number of chained providers.
func (f *Fallback) Len() int { return len(f.generators) }

// Generate returns the first provider result. When all providers fail the
// error is terminal only if every provider failed terminally.
func (f *Fallback) Generate(ctx context.Context, prompt string, opts ...Option) (Result, error) {
	if err := CheckPrompt(prompt); err != nil {
		return Result{}, err
	}
	if len(f.generators) == 0 {
		return Result{}, imagegenErrors.New(ErrNoProviders)
	}

	var last error
	allTerminal := true
	for i, g := range f.generators {
		res, err := g.Generate(ctx, prompt, opts...)
		if err == nil {
			if i > 0 {
				logx.WithContext(ctx).WithFields(logx.Fields{
					"provider": res.Provider,
					"position": i,
				}).Info("imagegen: fallback provider succeeded")
			}
			return res, nil
		}

		last = err
		if t, ok := errx.TypeOf(err); !ok || !t.Terminal() {
			allTerminal = false
		}
		logx.WithContext(ctx).WithError(err).WithField("position", i).Warn("imagegen: provider failed")

		if ctx.Err() != nil {
			allTerminal = false
			break
		}
	}

	code := ErrProvidersFailed
	if allTerminal {
		code = ErrProvidersRejected
	}
	return Result{}, imagegenErrors.NewWithCause(code, last).WithDetail("providers", len(f.generators))
}
