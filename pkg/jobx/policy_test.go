package jobx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Next(t *testing.T) {
	exp := Backoff{Type: BackoffExponential, Delay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, exp.Next(0))
	assert.Equal(t, 2*time.Second, exp.Next(1))
	assert.Equal(t, 4*time.Second, exp.Next(2))
	assert.Equal(t, 5*time.Second, exp.Next(3))
	assert.Equal(t, 5*time.Second, exp.Next(200))

	fixed := Backoff{Type: BackoffFixed, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.Next(0))
	assert.Equal(t, 2*time.Second, fixed.Next(4))

	assert.Zero(t, Backoff{}.Next(3))

	uncapped := Backoff{Type: BackoffExponential, Delay: time.Hour}
	assert.Positive(t, uncapped.Next(100))
}

func TestParseBackoffType(t *testing.T) {
	assert.Equal(t, BackoffFixed, ParseBackoffType(" Fixed "))
	assert.Equal(t, BackoffExponential, ParseBackoffType("exponential"))
	assert.Equal(t, BackoffExponential, ParseBackoffType(""))
}

func TestClassify(t *testing.T) {
	validation := errx.NewRegistry("T").Register("BAD", errx.TypeValidation, 400, "bad input")
	external := errx.NewRegistry("T").Register("UPSTREAM", errx.TypeExternal, 502, "upstream")
	reg := errx.NewRegistry("T")

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"explicit permanent", Permanent(errors.New("boom")), ClassPermanent},
		{"wrapped permanent", fmt.Errorf("send: %w", Permanent(errors.New("boom"))), ClassPermanent},
		{"invalid payload", jobxErrors.New(ErrInvalidPayload), ClassPermanent},
		{"validation type", reg.New(validation), ClassPermanent},
		{"external type", reg.New(external), ClassRetriable},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ClassRetriable},
		{"illegal address", errors.New("MessageRejected: Illegal address"), ClassPermanent},
		{"missing field", errors.New("Missing required header 'To'"), ClassPermanent},
		{"api key", errors.New("401: Invalid API key provided"), ClassPermanent},
		{"timeout text", errors.New("connection reset by peer"), ClassRetriable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}

	assert.Nil(t, Permanent(nil))
}

func TestJobInfo_IsFinalAttempt(t *testing.T) {
	assert.False(t, (&JobInfo{AttemptsMade: 0, MaxAttempts: 3}).IsFinalAttempt())
	assert.True(t, (&JobInfo{AttemptsMade: 2, MaxAttempts: 3}).IsFinalAttempt())
	assert.True(t, (&JobInfo{AttemptsMade: 0, MaxAttempts: 1}).IsFinalAttempt())
}

func TestDecodePayload(t *testing.T) {
	type payload struct {
		Quality int    `json:"quality" validate:"omitempty,min=1,max=100"`
		AssetID string `json:"assetId" validate:"required"`
	}

	_, err := DecodePayload[payload]([]byte(`{"assetId":"a1","quality":101}`))
	assert.True(t, errx.HasCode(err, ErrInvalidPayload))

	_, err = DecodePayload[payload](nil)
	assert.True(t, errx.HasCode(err, ErrInvalidPayload))

	p, err := DecodePayload[payload]([]byte(`{"assetId":"a1"}`))
	assert.NoError(t, err)
	assert.Equal(t, "a1", p.AssetID)
}
