package persistence

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoader(t *testing.T) {
	env := setupTestApp(t)
	assert.Equal(t, "persistence", (&Feature{service: env.service}).Name())

	disabled := NewFeature(nil, nil, nil, nil, zap.NewNop())
	assert.False(t, disabled.IsEnabled())

	enabled := NewFeature(env.reconciler, env.store, nil, nil, zap.NewNop())
	assert.True(t, enabled.IsEnabled())
	assert.NoError(t, enabled.Load(fiber.New()))
}
