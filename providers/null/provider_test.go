package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/provider"
)

func TestProvider_Lifecycle(t *testing.T) {
	p := New()
	ctx := context.Background()

	require.NoError(t, p.Configure(ctx, nil))
	assert.Equal(t, "null", p.Name())

	created, err := p.Create(ctx, &provider.Request{
		Kind:       "null:Resource",
		Name:       "marker",
		Attributes: map[string]any{"triggers": map[string]any{"rev": "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "null-marker", created.ID)
	assert.Equal(t, "null-marker", created.Outputs["id"])
	assert.Equal(t, map[string]any{"rev": "1"}, created.Outputs["triggers"])

	read, err := p.Read(ctx, &provider.Request{
		Kind:  "null:Resource",
		Name:  "marker",
		ID:    created.ID,
		Prior: created.Outputs,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, read.ID)
	assert.Equal(t, created.Outputs, read.Outputs)

	updated, err := p.Update(ctx, &provider.Request{
		Kind:       "null:Resource",
		Name:       "marker",
		ID:         created.ID,
		Attributes: map[string]any{"triggers": map[string]any{"rev": "2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, map[string]any{"rev": "2"}, updated.Outputs["triggers"])

	require.NoError(t, p.Delete(ctx, &provider.Request{Kind: "null:Resource", ID: created.ID}))
}
