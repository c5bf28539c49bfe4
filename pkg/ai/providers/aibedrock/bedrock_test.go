package aibedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	out   *bedrockruntime.InvokeModelOutput
	err   error
	input *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	return f.out, f.err
}

func titanBody(t *testing.T, images ...[]byte) []byte {
	t.Helper()
	resp := titanResponse{}
	for _, img := range images {
		resp.Images = append(resp.Images, base64.StdEncoding.EncodeToString(img))
	}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	return b
}

func TestGenerate_TitanRequest(t *testing.T) {
	fake := &fakeInvoker{out: &bedrockruntime.InvokeModelOutput{Body: titanBody(t, []byte("png"))}}
	p := &BedrockProvider{client: fake, defaultModel: "amazon.titan-image-generator-v2:0", cfgScale: 8}

	res, err := p.Generate(context.Background(), "industrial loft bathroom", imagegen.WithSize(1500, 700))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), res.Bytes)
	assert.Equal(t, "bedrock", res.Provider)
	assert.Equal(t, "amazon.titan-image-generator-v2:0", aws.ToString(fake.input.ModelId))

	var req titanRequest
	require.NoError(t, json.Unmarshal(fake.input.Body, &req))
	assert.Equal(t, "TEXT_IMAGE", req.TaskType)
	assert.Equal(t, "industrial loft bathroom", req.TextToImageParams.Text)
	assert.Equal(t, 1408, req.ImageGenerationConfig.Width)
	assert.Equal(t, 704, req.ImageGenerationConfig.Height)
	assert.Equal(t, 1, req.ImageGenerationConfig.NumberOfImages)
}

func TestGenerate_ResponseError(t *testing.T) {
	msg := "This request has been blocked by our content filters."
	body, _ := json.Marshal(titanResponse{Error: &msg})
	p := &BedrockProvider{client: &fakeInvoker{out: &bedrockruntime.InvokeModelOutput{Body: body}}, defaultModel: "m"}

	_, err := p.Generate(context.Background(), "p")
	require.True(t, errx.HasCode(err, ErrContentBlocked))
	typ, _ := errx.TypeOf(err)
	assert.True(t, typ.Terminal())
}

func TestGenerate_NoImage(t *testing.T) {
	p := &BedrockProvider{client: &fakeInvoker{out: &bedrockruntime.InvokeModelOutput{Body: titanBody(t)}}, defaultModel: "m"}
	_, err := p.Generate(context.Background(), "p")
	assert.True(t, errx.HasCode(err, ErrNoImage))
}

func TestParseBedrockError_Typed(t *testing.T) {
	cases := []struct {
		err  error
		want *errx.ErrorCode
	}{
		{&types.ThrottlingException{Message: aws.String("slow down")}, ErrAPIRateLimit},
		{&types.AccessDeniedException{Message: aws.String("no")}, ErrAPIUnauthorized},
		{&types.ResourceNotFoundException{Message: aws.String("gone")}, ErrModelNotFound},
		{&types.ValidationException{Message: aws.String("blocked by our content filters")}, ErrContentBlocked},
		{&types.ValidationException{Message: aws.String("width must be a multiple of 64")}, ErrInvalidRequest},
		{errors.New("connection reset by peer"), ErrAPIRequest},
	}
	for _, tc := range cases {
		assert.True(t, errx.HasCode(ParseBedrockError(tc.err), tc.want), tc.err.Error())
	}
}

func TestClampSide(t *testing.T) {
	assert.Equal(t, 320, clampSide(10))
	assert.Equal(t, 1408, clampSide(4096))
	assert.Equal(t, 1024, clampSide(1024))
	assert.Equal(t, 768, clampSide(760))
}
