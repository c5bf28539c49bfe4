package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testErrors = errx.NewRegistry("TEST")

var (
	errUpstream = testErrors.Register("UPSTREAM", errx.TypeExternal, 502, "upstream")
	errAuth     = testErrors.Register("AUTH", errx.TypeAuthorization, 401, "bad key")
)

func fixed(res Result, err error) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string, opts ...Option) (Result, error) {
		return res, err
	})
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	var secondary int
	f := NewFallback(
		fixed(Result{Bytes: []byte{1}, Provider: "gemini"}, nil),
		GeneratorFunc(func(ctx context.Context, prompt string, opts ...Option) (Result, error) {
			secondary++
			return Result{}, nil
		}),
	)
	res, err := f.Generate(context.Background(), "kitchen with oak floors")
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Provider)
	assert.Zero(t, secondary)
}

func TestFallback_UsesNextProvider(t *testing.T) {
	f := NewFallback(
		fixed(Result{}, testErrors.New(errUpstream)),
		fixed(Result{Bytes: []byte{1}, Provider: "openai"}, nil),
	)
	res, err := f.Generate(context.Background(), "bathroom")
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
}

func TestFallback_ErrorClassification(t *testing.T) {
	mixed := NewFallback(fixed(Result{}, testErrors.New(errAuth)), fixed(Result{}, errors.New("timeout")))
	_, err := mixed.Generate(context.Background(), "p")
	assert.True(t, errx.HasCode(err, ErrProvidersFailed))
	typ, _ := errx.TypeOf(err)
	assert.False(t, typ.Terminal())

	rejected := NewFallback(fixed(Result{}, testErrors.New(errAuth)), fixed(Result{}, testErrors.New(errAuth)))
	_, err = rejected.Generate(context.Background(), "p")
	assert.True(t, errx.HasCode(err, ErrProvidersRejected))
	typ, _ = errx.TypeOf(err)
	assert.True(t, typ.Terminal())
}

func TestFallback_RejectsEmptyPromptAndNoProviders(t *testing.T) {
	_, err := NewFallback(fixed(Result{}, nil)).Generate(context.Background(), "  ")
	assert.True(t, errx.HasCode(err, ErrEmptyPrompt))

	_, err = NewFallback().Generate(context.Background(), "p")
	assert.True(t, errx.HasCode(err, ErrNoProviders))
}

func TestApply(t *testing.T) {
	o := Apply(WithModel("m"), WithSize(512, 768))
	assert.Equal(t, Options{Model: "m", Width: 512, Height: 768}, o)
	assert.Equal(t, 1024, Apply().Width)
}
