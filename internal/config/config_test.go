package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zeldovich.par")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `[Zeldovich]
PPD = 64
NumBlock = 4
Boxsize = 100.0
Seed = 42
PkFilename = pk.txt
OutputDir = /tmp/out
`

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, p.PPD)
	require.Equal(t, 4, p.NumBlock)
	require.Equal(t, 16, p.Block)
	require.Equal(t, 2, p.NArray, "NArray should default to 2 with QPLT off")
	require.Equal(t, 1.0, p.KCutoff)
	require.Equal(t, -1, p.QOneSlab)
}

func TestLoadRejectsOddPPD(t *testing.T) {
	path := writeConfig(t, `[Zeldovich]
PPD = 63
NumBlock = 3
Boxsize = 100.0
Seed = 42
PkFilename = pk.txt
OutputDir = /tmp/out
`)
	if _, err := Load(path); err == nil {
		t.Errorf("Load() with odd PPD should have failed")
	}
}

func TestLoadRejectsNonDividingNumBlock(t *testing.T) {
	path := writeConfig(t, `[Zeldovich]
PPD = 64
NumBlock = 6
Boxsize = 100.0
Seed = 42
PkFilename = pk.txt
OutputDir = /tmp/out
`)
	if _, err := Load(path); err == nil {
		t.Errorf("Load() with non-dividing NumBlock should have failed")
	}
}

func TestLoadRequiresPLTFilenameWhenPLTEnabled(t *testing.T) {
	path := writeConfig(t, `[Zeldovich]
PPD = 64
NumBlock = 4
Boxsize = 100.0
Seed = 42
PkFilename = pk.txt
OutputDir = /tmp/out
QPLT = true
`)
	if _, err := Load(path); err == nil {
		t.Errorf("Load() with QPLT but no PLTFilename should have failed")
	}
}

func TestLoadDerivesGeometry(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	p, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, 100.0/64.0, p.Separation, 1e-9)
	require.InDelta(t, p.Fundamental*32, p.Nyquist, 1e-9)
}
