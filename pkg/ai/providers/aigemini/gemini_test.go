package aigemini

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp  *genai.GenerateContentResponse
	err   error
	model string
	cfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.cfg = config
	return f.resp, f.err
}

func TestGenerate_ReturnsInlineImage(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash-image-001",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Here is your kitchen"},
				{InlineData: &genai.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
			}},
		}},
	}}
	p := &GeminiProvider{models: fake, imageModel: "gemini-2.5-flash-image"}

	res, err := p.Generate(context.Background(), "modern kitchen, oak floors")
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, res.Bytes)
	assert.Equal(t, "gemini", res.Provider)
	assert.Equal(t, "gemini-2.5-flash-image", fake.model)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, fake.cfg.ResponseModalities)
	assert.Equal(t, "STOP", res.Metadata["finish_reason"])
}

func TestGenerate_NoImage(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}}}},
	}}
	p := &GeminiProvider{models: fake, imageModel: "m"}

	_, err := p.Generate(context.Background(), "p")
	assert.True(t, errx.HasCode(err, ErrNoImage))
}

func TestGenerate_BlockedPrompt(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}}
	p := &GeminiProvider{models: fake, imageModel: "m"}

	_, err := p.Generate(context.Background(), "p")
	require.True(t, errx.HasCode(err, ErrContentBlocked))
	typ, _ := errx.TypeOf(err)
	assert.True(t, typ.Terminal())
}

func TestParseGeminiError(t *testing.T) {
	cases := map[string]*errx.ErrorCode{
		"Error 400, API key not valid. Please pass a valid API key.": ErrAPIUnauthorized,
		"Error 429, RESOURCE_EXHAUSTED":                              ErrAPIRateLimit,
		"models/foo is not found for API version v1beta":             ErrModelNotFound,
		"Error 503, The model is overloaded":                         ErrAPIRequest,
	}
	for msg, want := range cases {
		assert.True(t, errx.HasCode(ParseGeminiError(errors.New(msg)), want), msg)
	}
	assert.Nil(t, ParseGeminiError(nil))
}
