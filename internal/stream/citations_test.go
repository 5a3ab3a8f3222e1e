package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDocumentIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: `<documents ids="a, b ,c" />`, want: []string{"a", "b", "c"}},
		{in: `<documents ids="a,,a" />`, want: []string{"a", "a"}},
		{in: `<document-citation ids="x"/>`, want: []string{"x"}},
		{in: `<documents ids="a"`},
		{in: `no citation`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDocumentIDs(tt.in))
		})
	}
}

func TestCitationMarkerRoundTrip(t *testing.T) {
	content := "Intro" + CitationMarker([]string{"a", "b"}) + "more" + `<documents ids="c" />`

	markers := ParseCitationMarkers(content)
	if assert.Len(t, markers, 2) {
		assert.Equal(t, []string{"a", "b"}, markers[0].IDs)
		assert.Equal(t, `<document-citation ids="a,b" />`, content[markers[0].Start:markers[0].End])
		assert.Equal(t, []string{"c"}, markers[1].IDs)
	}
}

func TestMightBeCitation(t *testing.T) {
	for _, s := range []string{"<", "documents", "ids", "a=b", `"`} {
		assert.True(t, mightBeCitation(s), s)
	}
	assert.False(t, mightBeCitation("plain prose"))
}
