package operations_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/operations"
	"valuepulse/internal/operations/testutil"
)

func ids(steps []operations.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID()
	}
	return out
}

// wages and values feed a join, which feeds a split; fbref is independent
func newDiamondRegistry(t *testing.T) *operations.Registry {
	t.Helper()
	reg := operations.NewRegistry()
	for _, s := range []*testutil.MockStep{
		testutil.NewMockStep("fbref"),
		testutil.NewMockStep("wages"),
		testutil.NewMockStep("values"),
		testutil.NewMockStep("join", "wages", "values", "fbref"),
		testutil.NewMockStep("split", "join"),
		testutil.NewMockStep("export"),
	} {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func TestRegistry_Register(t *testing.T) {
	reg := operations.NewRegistry()
	require.NoError(t, reg.Register(testutil.NewMockStep("a")))

	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(testutil.NewMockStep("")))
	assert.Error(t, reg.Register(testutil.NewMockStep("a")), "duplicate id")

	assert.True(t, reg.Has("a"))
	assert.Equal(t, 1, reg.Count())

	_, err := reg.Get("missing")
	assert.True(t, errors.Is(err, operations.ErrStepNotFound))
}

func TestRegistry_GetDependencyOrder(t *testing.T) {
	reg := newDiamondRegistry(t)

	steps, err := reg.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"fbref", "wages", "values", "export", "join", "split"}, ids(steps))
}

func TestRegistry_Resolve(t *testing.T) {
	reg := newDiamondRegistry(t)

	tests := []struct {
		name   string
		target string
		deps   bool
		want   []string
	}{
		{name: "alone", target: "split", want: []string{"split"}},
		{name: "with dependencies", target: "split", deps: true, want: []string{"fbref", "wages", "values", "join", "split"}},
		{name: "leaf", target: "wages", deps: true, want: []string{"wages"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := reg.Resolve(tt.target, tt.deps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(steps))
		})
	}

	_, err := reg.Resolve("nope", true)
	assert.ErrorIs(t, err, operations.ErrStepNotFound)
}

func TestRegistry_Cycles(t *testing.T) {
	reg := operations.NewRegistry()
	require.NoError(t, reg.Register(testutil.NewMockStep("a", "b")))
	require.NoError(t, reg.Register(testutil.NewMockStep("b", "a")))

	assert.Error(t, reg.ValidateDependencies())
	_, err := reg.Resolve("a", true)
	assert.Error(t, err)

	missing := operations.NewRegistry()
	require.NoError(t, missing.Register(testutil.NewMockStep("a", "ghost")))
	assert.Error(t, missing.ValidateDependencies())
}

func TestRegistry_GetDependents(t *testing.T) {
	reg := newDiamondRegistry(t)
	assert.Equal(t, []string{"join"}, ids(reg.GetDependents("wages")))
	assert.Empty(t, reg.GetDependents("split"))
}
