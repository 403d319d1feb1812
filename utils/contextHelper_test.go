package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAdvocate(t *testing.T) {
	_, err := RequireAdvocate(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	ctx := SetAdvocateIdInContext(context.Background(), "adv-7")
	id, err := RequireAdvocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "adv-7", id)
}

func TestActor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", Actor(ctx))

	ctx = SetAdvocateIdInContext(ctx, "adv-7")
	assert.Equal(t, "adv-7", Actor(ctx))

	ctx = SetActorNameInContext(ctx, "Adv. N. Dube")
	assert.Equal(t, "Adv. N. Dube", Actor(ctx))

	assert.Equal(t, "System", Actor(SystemContext(ctx)))
	assert.True(t, IsSystemContext(SystemContext(context.Background())))
	assert.False(t, IsSystemContext(ctx))
}
