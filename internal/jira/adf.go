package jira

import "strings"

// ADFDocument is the tracker's rich-text document format. Outbound
// descriptions are plain text converted into one paragraph per line block.
type ADFDocument struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []ADFNode `json:"content"`
}

// ADFNode is a single block or inline node.
type ADFNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []ADFNode `json:"content,omitempty"`
}

// ADFFromText converts plain text into a minimal ADF document. Blank lines
// separate paragraphs; empty input yields a single empty paragraph because
// the tracker rejects documents with no content.
func ADFFromText(text string) ADFDocument {
	doc := ADFDocument{Type: "doc", Version: 1}
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		paragraph := ADFNode{Type: "paragraph"}
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				paragraph.Content = append(paragraph.Content, ADFNode{Type: "hardBreak"})
			}
			paragraph.Content = append(paragraph.Content, ADFNode{Type: "text", Text: line})
		}
		doc.Content = append(doc.Content, paragraph)
	}
	if len(doc.Content) == 0 {
		doc.Content = []ADFNode{{Type: "paragraph"}}
	}
	return doc
}
