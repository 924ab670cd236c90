package artifact

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_RegisterOpen(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	data := []byte("audio bytes")
	a, err := reg.Register(ctx, Artifact{Name: "part1.m4a", MediaType: "audio/mp4", Data: data})
	require.NoError(t, err)

	_, err = uuid.Parse(a.Handle)
	require.NoError(t, err, "handle should be a UUID")
	assert.Equal(t, len(data), a.Size)

	opened, err := reg.Open(ctx, a.Handle)
	require.NoError(t, err)
	assert.Equal(t, a, opened)
	assert.Same(t, &data[0], &opened.Data[0], "bytes are shared, not copied")
	assert.Equal(t, 1, reg.Len())
}

func TestMemoryRegistry_RegisterAssignsNewHandles(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	a, err := reg.Register(ctx, Artifact{Name: "part1.m4a", Data: []byte("x")})
	require.NoError(t, err)
	b, err := reg.Register(ctx, Artifact{Handle: a.Handle, Name: "part2.m4a", Data: []byte("y")})
	require.NoError(t, err)

	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Equal(t, 2, reg.Len())
}

func TestMemoryRegistry_Revoke(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	a, err := reg.Register(ctx, Artifact{Name: "part1.m4a", Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, reg.Revoke(ctx, a.Handle))

	_, err = reg.Open(ctx, a.Handle)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.ErrorIs(t, reg.Revoke(ctx, a.Handle), ErrArtifactNotFound)
	assert.Zero(t, reg.Len())
}

func TestMemoryRegistry_OpenUnknown(t *testing.T) {
	_, err := NewMemoryRegistry().Open(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestMemoryRegistry_Concurrent(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := reg.Register(ctx, Artifact{Data: []byte("x")})
			if err != nil {
				return
			}
			_, _ = reg.Open(ctx, a.Handle)
			_ = reg.Revoke(ctx, a.Handle)
		}()
	}
	wg.Wait()

	assert.Zero(t, reg.Len())
}

func TestArtifact_Meta(t *testing.T) {
	a := Artifact{Handle: "h", Name: "part1.m4a", Size: 3, Data: []byte("abc")}
	m := a.Meta()
	assert.Nil(t, m.Data)
	assert.Equal(t, "h", m.Handle)
	assert.Equal(t, 3, m.Size)
	assert.NotNil(t, a.Data)
}
