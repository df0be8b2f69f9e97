package inject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBootstrap_Run(t *testing.T) {
	assert := assert.New(t)

	var b Bootstrap
	assert.Equal(NotStarted, b.State())

	calls := 0
	ran, err := b.Run(func() error {
		calls++
		return nil
	})
	assert.True(ran)
	assert.NoError(err)
	assert.Equal(Completed, b.State())

	ran, err = b.Run(func() error {
		calls++
		return nil
	})
	assert.False(ran)
	assert.NoError(err)
	assert.Equal(1, calls)
}

func TestBootstrap_FailureIsNotRetried(t *testing.T) {
	var b Bootstrap
	boom := errors.New("boom")

	ran, err := b.Run(func() error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Completed, b.State())

	ran, err = b.Run(func() error { return boom })
	assert.False(t, ran)
	assert.NoError(t, err)
}

func TestBootstrap_FreshStatePerValue(t *testing.T) {
	for i := 0; i < 2; i++ {
		var b Bootstrap
		ran, _ := b.Run(func() error { return nil })
		assert.True(t, ran)
	}
}
