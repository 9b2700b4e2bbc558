package personas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	set := Default()

	require.GreaterOrEqual(t, len(set.Personas), 2)
	require.NoError(t, set.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`personas:
  - name: Alex
    trait: data-driven and direct
  - name: Sam
    trait: plays devil's advocate
`), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	require.Len(t, set.Personas, 2)
	require.Equal(t, "Alex", set.Personas[0].Name)
	require.Equal(t, "plays devil's advocate", set.Personas[1].Trait)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     Set
		wantErr string
	}{
		{
			name:    "too few personas",
			set:     Set{Personas: []Persona{{Name: "Alex", Trait: "direct"}}},
			wantErr: "at least 2 personas",
		},
		{
			name: "empty name",
			set: Set{Personas: []Persona{
				{Name: "Alex", Trait: "direct"},
				{Name: "", Trait: "quiet"},
			}},
			wantErr: "empty name",
		},
		{
			name: "empty trait",
			set: Set{Personas: []Persona{
				{Name: "Alex", Trait: "direct"},
				{Name: "Sam", Trait: ""},
			}},
			wantErr: "empty trait",
		},
		{
			name: "duplicate name",
			set: Set{Personas: []Persona{
				{Name: "Alex", Trait: "direct"},
				{Name: "Alex", Trait: "quiet"},
			}},
			wantErr: "duplicate persona name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNextNeverRepeats(t *testing.T) {
	set := Default()

	last := -1
	for range len(set.Personas) * 3 {
		next, p := set.Next(last)
		require.NotEqual(t, last, next)
		require.Equal(t, set.Personas[next].Name, p.Name)
		last = next
	}
}

func TestNextIsRoundRobin(t *testing.T) {
	set := &Set{Personas: []Persona{
		{Name: "Alex", Trait: "a"},
		{Name: "Sam", Trait: "b"},
		{Name: "Riley", Trait: "c"},
	}}

	idx, p := set.Next(-1)
	require.Equal(t, 0, idx)
	require.Equal(t, "Alex", p.Name)

	idx, p = set.Next(idx)
	require.Equal(t, 1, idx)
	require.Equal(t, "Sam", p.Name)

	idx, p = set.Next(idx)
	require.Equal(t, 2, idx)
	require.Equal(t, "Riley", p.Name)

	idx, p = set.Next(idx)
	require.Equal(t, 0, idx)
	require.Equal(t, "Alex", p.Name)
}
