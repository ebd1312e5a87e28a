package migrations

import (
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	t.Parallel()

	base := filepath.Join("srv", "app")
	abs := filepath.Join(string(filepath.Separator), "opt", "migrations")

	tests := []struct {
		name string
		opts SourceOptions
		want []string
	}{
		{
			name: "relative joined with base path",
			opts: SourceOptions{Paths: []string{"database/extra"}, BasePath: base},
			want: []string{filepath.Join(base, "database", "extra")},
		},
		{
			name: "realpath keeps value",
			opts: SourceOptions{Paths: []string{"database/extra"}, BasePath: base, RealPath: true},
			want: []string{filepath.Join("database", "extra")},
		},
		{
			name: "absolute path untouched",
			opts: SourceOptions{Paths: []string{abs, ""}, BasePath: base},
			want: []string{abs},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.opts.ResolvePaths())
		})
	}
}

func TestUnionFSMergesDirectories(t *testing.T) {
	t.Parallel()

	first := fstest.MapFS{
		"000002_b.up.sql": {Data: []byte("first")},
		"000001_a.up.sql": {Data: []byte("one")},
	}
	second := fstest.MapFS{
		"000002_b.up.sql": {Data: []byte("second")},
		"000003_c.up.sql": {Data: []byte("three")},
	}
	u := unionFS{first, second}

	entries, err := fs.ReadDir(u, ".")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}, names)

	data, err := fs.ReadFile(u, "000002_b.up.sql")
	require.NoError(t, err)
	require.Equal(t, "first", string(data))

	_, err = u.Open("missing.sql")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDirsFSRejectsMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := dirsFS([]string{filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}
