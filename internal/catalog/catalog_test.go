// ABOUTME: Tests for the embedded skill catalog and its ordering lookups
// ABOUTME: Verifies validation rules reject malformed catalogs
package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Equal(t, 12, c.Len())
	assert.Len(t, c.Cultivations(), 4)
	assert.Equal(t, "00", c.First().ID)

	for i, s := range c.All() {
		assert.Equal(t, i, c.Ordinal(s.ID))
		assert.NotEmpty(t, s.Cultivation)
		assert.NotEmpty(t, s.Reading)
		bank, ok := c.Bank(s.ID)
		require.True(t, ok)
		assert.NotEmpty(t, bank.Curiosity)
	}
	assert.NotEmpty(t, c.SamathaPrompt())
}

func TestNextAndPrev(t *testing.T) {
	c := Default()

	tests := []struct {
		id      string
		next    string
		hasNext bool
		prev    string
		hasPrev bool
	}{
		{"00", "01", true, "", false},
		{"02", "03", true, "01", true},
		{"11", "", false, "10", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			n, ok := c.Next(tt.id)
			assert.Equal(t, tt.hasNext, ok)
			assert.Equal(t, tt.next, n.ID)

			p, ok := c.Prev(tt.id)
			assert.Equal(t, tt.hasPrev, ok)
			assert.Equal(t, tt.prev, p.ID)
		})
	}

	_, ok := c.Next("99")
	assert.False(t, ok)
}

func TestDistance(t *testing.T) {
	c := Default()

	d, err := c.Distance("02", "05")
	require.NoError(t, err)
	assert.Equal(t, 3, d)

	d, err = c.Distance("05", "02")
	require.NoError(t, err)
	assert.Equal(t, -3, d)

	_, err = c.Distance("02", "xx")
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	c := Default()
	s, ok := c.Get("05")
	require.True(t, ok)

	assert.Equal(t, s.Marker.Label, c.MarkerLabel(s.Marker.Code))
	assert.Equal(t, s.Hindrance.Label, c.HindranceLabel(s.Hindrance.Code))
	assert.Equal(t, "mystery", c.MarkerLabel("mystery"))
}

func TestNormalizeID(t *testing.T) {
	c := Default()

	id, ok := c.NormalizeID("2")
	assert.True(t, ok)
	assert.Equal(t, "02", id)

	id, ok = c.NormalizeID(" 11 ")
	assert.True(t, ok)
	assert.Equal(t, "11", id)

	_, ok = c.NormalizeID("12")
	assert.False(t, ok)

	_, ok = c.NormalizeID("abc")
	assert.False(t, ok)
}

func TestParseRejectsMalformed(t *testing.T) {
	prompts := []byte(`
samatha: "calm?"
banks:
  "00": {understanding: u, balance: b, curiosity: [c]}
  "01": {understanding: u, balance: b, curiosity: [c]}
`)

	tests := []struct {
		name   string
		skills string
	}{
		{
			name: "out of order",
			skills: `
cultivations:
  - name: A
    skills:
      - {id: "01", name: x, marker: {code: m1, label: m}, hindrance: {code: h1, label: h}}
`,
		},
		{
			name: "duplicate marker",
			skills: `
cultivations:
  - name: A
    skills:
      - {id: "00", name: x, marker: {code: m1, label: m}, hindrance: {code: h1, label: h}}
      - {id: "01", name: y, marker: {code: m1, label: m}, hindrance: {code: h2, label: h}}
`,
		},
		{
			name:   "empty",
			skills: `cultivations: []`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.skills), prompts)
			assert.Error(t, err)
		})
	}
}

func TestParseRequiresPromptBanks(t *testing.T) {
	skills := []byte(`
cultivations:
  - name: A
    skills:
      - {id: "00", name: x, marker: {code: m1, label: m}, hindrance: {code: h1, label: h}}
`)
	_, err := Parse(skills, []byte(`samatha: "calm?"`))
	assert.Error(t, err)
}
