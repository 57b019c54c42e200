package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ParseText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Parse("notes.txt", []byte("My daughter Mary visits on Sundays."))
	require.NoError(t, err)
	assert.Equal(t, "My daughter Mary visits on Sundays.", text)

	text, err = r.Parse("README.MD", []byte("# Heading"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading", text)
}

func TestRegistry_UnsupportedFormat(t *testing.T) {
	r := NewRegistry()

	_, err := r.Parse("photo.jpg", []byte{0xFF, 0xD8})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = r.Parse("noextension", []byte("text"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTextParser_RejectsInvalidUTF8(t *testing.T) {
	p := NewTextParser()

	_, err := p.Parse([]byte{0xFF, 0xFE, 0x00})
	assert.Error(t, err)
}

func TestPDFParser_RejectsGarbage(t *testing.T) {
	p := NewPDFParser()

	_, err := p.Parse([]byte("not a pdf at all"))
	assert.Error(t, err)
}
