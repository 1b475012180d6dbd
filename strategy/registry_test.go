package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddAndNew(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Add("noop", func(map[string]any) (Strategy, error) { return Noop{}, nil }))

	s, err := r.New("noop", nil)
	require.NoError(t, err)
	assert.Equal(t, "noop", s.Name())
	assert.Nil(t, s.OnBar(nil, nil))
}

func TestRegistryDuplicateName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ctor := func(map[string]any) (Strategy, error) { return Noop{}, nil }
	require.NoError(t, r.Add("dup", ctor))
	assert.Error(t, r.Add("dup", ctor))
}

func TestRegistryUnknownName(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	_, err := r.New("nope", nil)
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestDefaultRegistryNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"emacross", "noop"}, DefaultRegistry().Names())
}
