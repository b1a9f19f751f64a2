package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The package-level helpers must work before Initialize runs; callers
	// like test binaries never configure the logger.
	assert.NotPanics(t, func() {
		Info("info", zap.String("k", "v"))
		Warn("warn")
		Debug("debug")
		Error(errors.New("boom"))
		Error(nil)

		ctx := context.Background()
		InfoCtx(ctx, "info")
		WarnCtx(ctx, "warn")
		DebugCtx(ctx, "debug")
		ErrorCtx(ctx, errors.New("boom"))
		ErrorCtx(ctx, nil)
	})
}

func TestInitializeWithoutSentry(t *testing.T) {
	require.NoError(t, Initialize(Config{Debug: true}))
	assert.NotNil(t, Default())
	assert.NotNil(t, FromContext(context.Background()))
}
