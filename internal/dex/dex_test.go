package dex

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tickantoe/internal/conditions"
)

func load(t *testing.T) *Dex {
	t.Helper()
	d, err := Load("")
	require.NoError(t, err)
	return d
}

func TestEmbeddedTable(t *testing.T) {
	d := load(t)
	assert.Equal(t, 8, d.MaxGeneration())
	assert.Len(t, d.Generations(), 8)
	e, ok := d.Entity(79)
	require.True(t, ok)
	assert.Equal(t, "Slowpoke", e.Name)
}

func TestCriteria(t *testing.T) {
	d := load(t)
	squirtle, _ := d.Entity(7)
	assert.Equal(t, []string{"water", Monotype, "kanto"}, d.Criteria(squirtle))
	tentacool, _ := d.Entity(72)
	assert.Equal(t, []string{"water", "poison", "kanto"}, d.Criteria(tentacool))
}

func TestClamp(t *testing.T) {
	d := load(t)
	assert.Equal(t, 8, d.Clamp(0))
	assert.Equal(t, 8, d.Clamp(12))
	assert.Equal(t, 3, d.Clamp(3))
	assert.Equal(t, 8, d.Clamp(-4))
}

func TestValidCombos(t *testing.T) {
	d := load(t)
	gen1 := d.ValidCombos(1)
	assert.Contains(t, gen1, conditions.Pair{"poison", "water"})
	assert.Contains(t, gen1, conditions.Pair{"kanto", Monotype})
	assert.NotContains(t, gen1, conditions.Pair{"fire", "ground"}, "Numel is generation 3")
	for _, p := range gen1 {
		assert.Less(t, p[0], p[1], "pairs are ordered and distinct")
		assert.NotEqual(t, "johto", p[0])
		assert.NotEqual(t, "johto", p[1])
	}
	assert.Contains(t, d.ValidCombos(3), conditions.Pair{"fire", "ground"})
	assert.Greater(t, len(d.ValidCombos(0)), len(gen1))
}

func TestGeneratedGridIsPlayable(t *testing.T) {
	d := load(t)
	rng := rand.New(rand.NewPCG(7, 11))
	for maxGen := 1; maxGen <= 3; maxGen++ {
		res := conditions.Pick(rng, d.ValidCombos(maxGen), nil)
		require.False(t, res.Exhausted, "gen %d", maxGen)
		for _, p := range res.Grid.Pairs() {
			found := false
			for _, e := range d.entities {
				if e.Generation <= maxGen && d.Test(strconv.Itoa(e.ID), []string{p.Col(), p.Row()}) {
					found = true
					break
				}
			}
			assert.True(t, found, "no entity for %v at gen %d", p, maxGen)
		}
	}
}

func TestTest(t *testing.T) {
	d := load(t)
	assert.True(t, d.Test("72", []string{"Water", "POISON"}))
	assert.True(t, d.Test("7", []string{"monotype", "kanto"}))
	assert.False(t, d.Test("7", []string{"water", "poison"}))
	assert.False(t, d.Test("9999", []string{"water"}))
	assert.False(t, d.Test("squirtle", []string{"water"}))
	assert.False(t, d.Test("7", nil))
	assert.False(t, d.Test("7", []string{}))
}

func TestMetadata(t *testing.T) {
	d := load(t)
	m := d.Metadata(2)
	assert.Equal(t, 2, m.Defaults.MaxGen)
	require.Len(t, m.GenYears, 8)
	assert.Equal(t, GenYear{N: 1, Year: 1996}, m.GenYears[0])
	assert.Equal(t, 8, d.Metadata(0).Defaults.MaxGen)
}

func TestMatches(t *testing.T) {
	d := load(t)
	assert.Empty(t, d.Matches("sl", 0))

	got := d.Matches("slo", 2)
	require.NotEmpty(t, got)
	assert.Equal(t, "Slowking", got[0].Name)
	assert.Equal(t, "Slowpoke", got[1].Name)
	require.Len(t, got[0].Forms, 1)
	assert.Equal(t, 199, got[0].Forms[0].ID)

	for _, m := range d.Matches("slo", 1) {
		assert.NotEqual(t, "Slowking", m.Name)
	}
	assert.LessOrEqual(t, len(d.Matches("aaa", 0)), maxMatches)
}

func TestLoadFileAndErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "dex.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
generations:
  - {n: 1, year: 1996, region: Kanto}
entities:
  - {id: 1, name: A, generation: 1, types: [Fire]}
`), 0o644))
	d, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, []conditions.Pair{{"fire", "kanto"}, {"fire", "monotype"}, {"kanto", "monotype"}}, d.ValidCombos(1))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte(`
generations:
  - {n: 1, year: 1996, region: kanto}
entities:
  - {id: 1, name: A, generation: 2, types: [fire]}
`))
	assert.ErrorContains(t, err, "unknown generation")

	_, err = Parse([]byte(`
generations:
  - {n: 1, year: 1996, region: kanto}
entities:
  - {id: 1, name: A, generation: 1, types: [fire, water, grass]}
`))
	assert.Error(t, err)
}
