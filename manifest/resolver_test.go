package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"models", "models"},
		{"my-app", "my_app"},
		{"MyApp", "myapp"},
		{"json.utils", "json_utils"},
		{"9lives", "_9lives"},
		{"", ""},
		{"héllo", "hllo"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ModuleName(tc.input), tc.input)
	}
}

func TestResolveModule(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		want        string
		wantErr     bool
	}{
		{
			name:        "consumer override wins",
			depName:     "vec",
			dep:         Dependency{Path: "../v", Name: "vectors"},
			depManifest: &Manifest{Project: Project{Name: "vecmath"}},
			want:        "vectors",
		},
		{
			name:        "producer project name",
			depName:     "vec",
			dep:         Dependency{Path: "../v"},
			depManifest: &Manifest{Project: Project{Name: "vec-math"}},
			want:        "vec_math",
		},
		{
			name:    "key fallback",
			depName: "my-lib",
			dep:     Dependency{Path: "../my-lib"},
			want:    "my_lib",
		},
		{
			name:    "reserved stdlib name",
			depName: "math",
			dep:     Dependency{Path: "../math"},
			wantErr: true,
		},
		{
			name:    "reserved keyword override",
			depName: "lib",
			dep:     Dependency{Path: "../lib", Name: "class"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveModule(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	helper := filepath.Join(root, "helper")
	util := filepath.Join(root, "util")
	for _, d := range []string{app, helper, util} {
		require.NoError(t, os.MkdirAll(d, 0755))
	}
	writeManifest(t, app, "[dependencies]\nhelper = { path = \"../helper\" }\n")
	writeManifest(t, helper, "[project]\nname = \"helper-lib\"\n[dependencies]\nutil = { path = \"../util\" }\n")

	m, err := Load(app)
	require.NoError(t, err)

	deps, err := NewResolver(m).Resolve()
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "util", deps[0].Name)
	assert.Equal(t, util, deps[0].LocalPath)
	assert.Equal(t, "helper", deps[1].Name)
	assert.Equal(t, "helper_lib", deps[1].Module)

	lf, err := ReadLock(m.LockFilePath())
	require.NoError(t, err)
	require.Len(t, lf.Deps, 2)
	assert.Equal(t, "../helper", lf.FindLockedDep("helper").Path)
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\ngone = { path = \"./gone\" }\n")
	m, err := Load(dir)
	require.NoError(t, err)

	_, err = NewResolver(m).Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
}

func TestResolveNoSource(t *testing.T) {
	m := &Manifest{Dir: t.TempDir(), Dependencies: map[string]Dependency{"x": {}}}
	_, err := NewResolver(m).Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no git or path")
}
