package jira

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestADFFromTextParagraphs(t *testing.T) {
	doc := ADFFromText("first paragraph\n\nsecond paragraph")

	assert.Equal(t, "doc", doc.Type)
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Content, 2)
	assert.Equal(t, "first paragraph", doc.Content[0].Content[0].Text)
	assert.Equal(t, "second paragraph", doc.Content[1].Content[0].Text)
}

func TestADFFromTextHardBreaks(t *testing.T) {
	doc := ADFFromText("line one\nline two")

	require.Len(t, doc.Content, 1)
	nodes := doc.Content[0].Content
	require.Len(t, nodes, 3)
	assert.Equal(t, "text", nodes[0].Type)
	assert.Equal(t, "hardBreak", nodes[1].Type)
	assert.Equal(t, "line two", nodes[2].Text)
}

func TestADFFromTextEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n"} {
		doc := ADFFromText(input)
		require.Len(t, doc.Content, 1)
		assert.Equal(t, "paragraph", doc.Content[0].Type)
		assert.Empty(t, doc.Content[0].Content)
	}
}
