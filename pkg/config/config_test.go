package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	data := []byte(`
slits:
  - name: slit1
    prefix: HXR:SLIT1
    nominal_aperture: [6.0, 4.0]
    default_timeout: 45s
  - name: slit2
    prefix: HXR:SLIT2
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, cfg.Slits, 2)

	s1 := cfg.Slits[0]
	assert.Equal(t, "slit1", s1.Name)
	assert.Equal(t, "HXR:SLIT1", s1.Prefix)
	assert.Equal(t, 6.0, s1.Width())
	assert.Equal(t, 4.0, s1.Height())
	assert.Equal(t, 45*time.Second, s1.Timeout)

	s2 := cfg.Slits[1]
	assert.Equal(t, DefaultNominalWidth, s2.Width())
	assert.Equal(t, DefaultNominalHeight, s2.Height())
	assert.Zero(t, s2.Timeout)
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("slits: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing beamline config")
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no slits",
			yaml: "slits: []",
			want: "no slits defined",
		},
		{
			name: "missing name",
			yaml: "slits:\n  - prefix: HXR:SLIT1",
			want: "name is required",
		},
		{
			name: "missing prefix",
			yaml: "slits:\n  - name: slit1",
			want: "prefix is required",
		},
		{
			name: "duplicate name",
			yaml: `slits:
  - name: slit1
    prefix: HXR:SLIT1
  - name: slit1
    prefix: HXR:SLIT2
`,
			want: "defined twice",
		},
		{
			name: "duplicate prefix",
			yaml: `slits:
  - name: slit1
    prefix: HXR:SLIT1
  - name: slit2
    prefix: HXR:SLIT1
`,
			want: "already used",
		},
		{
			name: "nominal wrong arity",
			yaml: "slits:\n  - name: slit1\n    prefix: HXR:SLIT1\n    nominal_aperture: [5.0]",
			want: "needs [width, height]",
		},
		{
			name: "nominal not positive",
			yaml: "slits:\n  - name: slit1\n    prefix: HXR:SLIT1\n    nominal_aperture: [5.0, -2.0]",
			want: "must be positive",
		},
		{
			name: "timeout unparseable",
			yaml: "slits:\n  - name: slit1\n    prefix: HXR:SLIT1\n    default_timeout: fast",
			want: "parse default_timeout",
		},
		{
			name: "timeout not positive",
			yaml: "slits:\n  - name: slit1\n    prefix: HXR:SLIT1\n    default_timeout: -3s",
			want: "must be positive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamline.yaml")
	data := "slits:\n  - name: slit1\n    prefix: SIM:SLIT1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Slits, 1)
	assert.Equal(t, "SIM:SLIT1", cfg.Slits[0].Prefix)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestLookup(t *testing.T) {
	cfg, err := Parse([]byte("slits:\n  - name: slit1\n    prefix: SIM:SLIT1\n"))
	require.NoError(t, err)

	entry, ok := cfg.Lookup("slit1")
	require.True(t, ok)
	assert.Equal(t, "SIM:SLIT1", entry.Prefix)

	_, ok = cfg.Lookup("slit9")
	assert.False(t, ok)
}
