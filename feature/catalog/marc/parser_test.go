package marc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serial = `{
  "leader": "01234cas a2200349 a 4500",
  "fields": [
    {"001": "1234"},
    {"245": {"ind1": "0", "ind2": "0", "subfields": [{"a": "Nature :"}, {"b": "international weekly journal of science."}]}},
    {"300": {"ind1": " ", "ind2": " ", "subfields": [{"a": "v. :"}, {"b": "ill. ;"}, {"c": "28 cm."}]}}
  ]
}`

const bookWithDisc = `{
  "leader": "00000cam a2200000 a 4500",
  "fields": [
    {"245": {"ind1": "1", "ind2": "0", "subfields": [{"a": "Learning Go /"}, {"c": "Jon Bodner."}]}},
    {"300": {"ind1": " ", "ind2": " ", "subfields": [{"a": "xv, 350 p. :"}, {"c": "24 cm. +"}, {"e": "1 CD-ROM"}]}}
  ]
}`

func TestJSONParser_Parse(t *testing.T) {
	var p Parser = JSONParser{}

	bib, err := p.Parse([]byte(serial))
	require.NoError(t, err)
	assert.Equal(t, "Nature : international weekly journal of science", bib.Title)
	assert.Equal(t, "Journal/Periodical", bib.Format)
	assert.Equal(t, "v. : ill. ; 28 cm", bib.PhysicalDescription)
	assert.False(t, bib.HasSupplement)

	bib, err = p.Parse([]byte(bookWithDisc))
	require.NoError(t, err)
	assert.Equal(t, "Learning Go", bib.Title)
	assert.Equal(t, "Book", bib.Format)
	assert.Equal(t, "xv, 350 p. : 24 cm. + 1 CD-ROM", bib.PhysicalDescription)
	assert.True(t, bib.HasSupplement)
}

func TestJSONParser_Errors(t *testing.T) {
	_, err := JSONParser{}.Parse(nil)
	assert.Error(t, err)

	_, err = JSONParser{}.Parse([]byte("{"))
	assert.ErrorContains(t, err, "failed to decode MARC JSON")
}

func TestFormat(t *testing.T) {
	tests := map[string]string{
		"00000cam a2200000 a 4500": "Book",
		"00000cas a2200000 a 4500": "Journal/Periodical",
		"00000cgm a2200000 a 4500": "Video",
		"00000cjm a2200000 a 4500": "Musical Recording",
		"00000ctm a2200000 a 4500": "Manuscript/Archive",
		"00000czm a2200000 a 4500": "Miscellaneous",
		"short":                    "",
	}
	for leader, want := range tests {
		assert.Equal(t, want, Format(leader), leader)
	}
}
