package asyncx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSettled_KeepsOrderAndErrors(t *testing.T) {
	boom := errors.New("boom")
	results := AllSettled(context.Background(),
		func(context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 1, nil
		},
		func(context.Context) (int, error) { return 0, boom },
		func(context.Context) (int, error) { return 3, nil },
	)

	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.Equal(t, 1, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 3, results[2].Value)
}

func TestAllSettled_Empty(t *testing.T) {
	assert.Empty(t, AllSettled[string](context.Background()))
}

func TestWithTimeout_ReturnsResult(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestWithTimeout_StopsWaitingForStuckCall(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
