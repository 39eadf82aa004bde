package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerStopsOthers(t *testing.T) {
	failure := errors.New("broker gone")
	r := NewRunner()
	r.Go(
		NamedRun("waiter", RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunnableFunc(func(ctx context.Context) error {
			return failure
		}),
	)
	err := r.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, "broker gone", err.Error())
	assert.Len(t, r.Runners, 2)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	time.AfterFunc(10*time.Millisecond, r.Stop)
	assert.NoError(t, r.Wait())
}

func TestRunnerParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))
	cancel()
	assert.NoError(t, r.Wait())
}

func TestNamedRun(t *testing.T) {
	named := NamedRun("bridge", RunnableFunc(func(context.Context) error { return nil }))
	assert.Equal(t, "bridge", named.(Named).Name())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	assert.NoError(t, errs.Aggregate())

	first, second := errors.New("first"), errors.New("second")
	errs.Add(nil, context.Canceled, first)
	assert.Equal(t, "first", errs.Aggregate().Error())
	errs.Add(second)
	err := errs.Aggregate()
	assert.Equal(t, "Multiple errors:\nfirst\nsecond", err.Error())
	assert.ErrorIs(t, err, second)
}
