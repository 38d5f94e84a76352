package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnParams struct {
	AssetPath string    `json:"assetPath" cmd:"required" desc:"asset to place"`
	Location  geom.Vec3 `json:"location"`
	Count     int       `json:"count"`
	Tags      []string  `json:"tags"`
	Validate  *bool     `json:"validate"`
	Internal  string    `json:"-"`
}

func newSpawnRegistry(t *testing.T) (*Registry, *spawnParams) {
	t.Helper()
	r := New()
	var got spawnParams
	err := Register(r, Spec{Name: "actor_spawn", Category: "actors", Aliases: []string{"actor.spawn"}},
		func(_ context.Context, p spawnParams) (any, error) {
			got = p
			return map[string]any{"asset": p.AssetPath}, nil
		})
	require.NoError(t, err)
	return r, &got
}

func TestRegisterDescribesParams(t *testing.T) {
	r, _ := newSpawnRegistry(t)
	cmd, ok := r.Lookup("actor_spawn")
	require.True(t, ok)

	assert.Equal(t, []Param{
		{Name: "assetPath", Type: "string", Required: true, Description: "asset to place"},
		{Name: "location", Type: "array"},
		{Name: "count", Type: "integer"},
		{Name: "tags", Type: "array"},
		{Name: "validate", Type: "boolean"},
	}, cmd.Params)
}

func TestInvokeDecodesParams(t *testing.T) {
	r, got := newSpawnRegistry(t)
	cmd, _ := r.Lookup("actor_spawn")

	out, err := cmd.Invoke(context.Background(), json.RawMessage(`{"assetPath": "/Game/A", "location": [1, 2, 3], "count": 2}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"asset": "/Game/A"}, out)
	assert.Equal(t, geom.Vec3{X: 1, Y: 2, Z: 3}, got.Location)
	assert.Equal(t, 2, got.Count)
}

func TestInvokeRejectsBadParams(t *testing.T) {
	r, _ := newSpawnRegistry(t)
	cmd, _ := r.Lookup("actor_spawn")

	cases := map[string]string{
		"missing required": `{"count": 1}`,
		"null required":    `{"assetPath": null}`,
		"unknown field":    `{"assetPath": "/Game/A", "colour": "red"}`,
		"wrong type":       `{"assetPath": "/Game/A", "count": "two"}`,
		"not an object":    `[1, 2]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cmd.Invoke(context.Background(), json.RawMessage(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams), "err = %v", err)
		})
	}
}

func TestInvokeEmptyParams(t *testing.T) {
	r := New()
	called := false
	MustRegister(r, Spec{Name: "test_connection"}, func(context.Context, struct{}) (any, error) {
		called = true
		return "ok", nil
	})
	cmd, _ := r.Lookup("test_connection")
	for _, raw := range []string{"", "null", "{}"} {
		_, err := cmd.Invoke(context.Background(), json.RawMessage(raw))
		require.NoError(t, err, "params %q", raw)
	}
	assert.True(t, called)
	assert.Equal(t, "general", cmd.Category)
}

func TestAliasResolution(t *testing.T) {
	r, _ := newSpawnRegistry(t)

	name, ok := r.Resolve("actor.spawn")
	require.True(t, ok)
	assert.Equal(t, "actor_spawn", name)

	cmd, ok := r.Lookup("actor.spawn")
	require.True(t, ok)
	assert.Equal(t, "actor_spawn", cmd.Name)

	_, ok = r.Resolve("actor.explode")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r, _ := newSpawnRegistry(t)
	noop := func(context.Context, struct{}) (any, error) { return nil, nil }

	assert.ErrorIs(t, Register(r, Spec{Name: "actor_spawn"}, noop), ErrDuplicate)
	assert.ErrorIs(t, Register(r, Spec{Name: "actor.spawn"}, noop), ErrDuplicate)
	assert.ErrorIs(t, Register(r, Spec{Name: "other", Aliases: []string{"actor_spawn"}}, noop), ErrDuplicate)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsNonStructParams(t *testing.T) {
	r := New()
	err := Register(r, Spec{Name: "bad"}, func(context.Context, string) (any, error) { return nil, nil })
	assert.ErrorContains(t, err, "must be a struct")
	assert.Panics(t, func() {
		MustRegister(r, Spec{Name: ""}, func(context.Context, struct{}) (any, error) { return nil, nil })
	})
}

func TestByCategory(t *testing.T) {
	r := New()
	noop := func(context.Context, struct{}) (any, error) { return nil, nil }
	MustRegister(r, Spec{Name: "viewport_camera", Category: "viewport"}, noop)
	MustRegister(r, Spec{Name: "actor_spawn", Category: "actors"}, noop)
	MustRegister(r, Spec{Name: "actor_delete", Category: "actors"}, noop)

	assert.Equal(t, map[string][]string{
		"actors":   {"actor_delete", "actor_spawn"},
		"viewport": {"viewport_camera"},
	}, r.ByCategory())

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "actor_delete", list[0].Name)
}
