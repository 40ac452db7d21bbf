package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunWithContextCancel(t *testing.T) {
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	var canceled bool
	err := RunWithContextCancel(ctx, func() {
		canceled = true
		close(release)
	}, func() error {
		<-release
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
	require.True(t, canceled)

	err = RunWithContextCancel(context.Background(), func() {
		t.Fatal("unexpected cancel")
	}, func() error {
		return errors.New("done")
	})
	require.EqualError(t, err, "done")
}

func TestRunWithContextCloser(t *testing.T) {
	var closes int
	err := RunWithContextCloser(context.Background(), closerFunc(func() error {
		closes++
		return nil
	}), func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, closes)
}

func TestRunner(t *testing.T) {
	failure := errors.New("failure")
	r := NewRunner().Go(
		NamedRun("failing", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	err := r.Wait()
	require.Error(t, err)
	require.ErrorIs(t, err, failure)
	require.Len(t, err.(*AggregatedError).Errors, 1)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.Len(t, errs.Errors, 2)
	require.Equal(t, "Multiple errors:\na\nb", errs.Aggregate().Error())
}
