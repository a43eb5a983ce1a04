package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(" \t\n"))
	assert.False(t, IsEmpty(" a "))
}

func TestSecrets(t *testing.T) {
	secret, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, secret, 64)

	other, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)

	hash := HashSecret(secret)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, secret, hash)
	assert.True(t, SecretMatchesHash(secret, hash))
	assert.False(t, SecretMatchesHash(other, hash))
	assert.False(t, SecretMatchesHash("", hash))
}

func TestCalculateExponentialBackoffWithJitter(t *testing.T) {
	base, maxDelay := 100*time.Millisecond, time.Second

	assert.Zero(t, CalculateExponentialBackoffWithJitter(0, base, maxDelay))
	for attempt := 1; attempt <= 10; attempt++ {
		d := CalculateExponentialBackoffWithJitter(attempt, base, maxDelay)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, maxDelay)
	}

	first := CalculateExponentialBackoffWithJitter(1, base, maxDelay)
	assert.InDelta(t, float64(base), float64(first), float64(base/8)+1)
	third := CalculateExponentialBackoffWithJitter(3, base, maxDelay)
	assert.InDelta(t, float64(4*base), float64(third), float64(4*base/8)+1)
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	c := NewHTTPClient()
	assert.Equal(t, defaultClientTimeout, c.Timeout)

	c = NewHTTPClient(WithClientTimeout(time.Second))
	assert.Equal(t, time.Second, c.Timeout)
}

func TestFormatConfigErrors(t *testing.T) {
	type cfg struct {
		Port string `mapstructure:"PORT" validate:"required"`
	}
	err := validator.New().Struct(cfg{})
	require.Error(t, err)

	formatted := FormatConfigErrors(zap.NewNop(), err, cfg{})
	assert.Contains(t, formatted.Error(), "APP_PORT failed 'required'")

	plain := errors.New("plain")
	assert.Equal(t, plain, FormatConfigErrors(zap.NewNop(), plain, cfg{}))
}
