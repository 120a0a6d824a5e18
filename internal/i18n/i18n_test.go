package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalesShareKeys(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	want := c.Keys(RU)
	require.NotEmpty(t, want)
	for _, l := range Supported() {
		assert.Equal(t, want, c.Keys(l), "locale %s", l)
	}
}

func TestTranslateFallbacks(t *testing.T) {
	c := &Catalog{messages: map[Lang]map[string]string{
		RU: {"only_ru": "ру", "greet": "Привет, %s"},
		EN: {"greet": "Hi, %s"},
	}}

	assert.Equal(t, "Hi, Ann", c.T(EN, "greet", "Ann"))
	assert.Equal(t, "Hi, Ann", c.T(DE, "greet", "Ann"))
	assert.Equal(t, "ру", c.T(PL, "only_ru"))
	assert.Equal(t, "missing_key", c.T(EN, "missing_key"))
}

func TestParse(t *testing.T) {
	l, ok := Parse(" EN ")
	assert.True(t, ok)
	assert.Equal(t, EN, l)

	_, ok = Parse("fr")
	assert.False(t, ok)
	assert.Equal(t, RU, OrDefault("fr"))
	assert.Equal(t, PL, OrDefault("pl"))
}
