package config

// GetDefaultSectionTemplate returns the default template for drafting one section.
//
// Available data: DocumentTitle, SectionTitle, ParentTopic, Focus ([]string),
// TargetWords, SectionNumber, TotalSections, PreviousSections ([]PreviousSection
// with Title and Excerpt).
func GetDefaultSectionTemplate() string {
	return `You are writing section {{.SectionNumber}} of {{.TotalSections}} of the business document "{{.DocumentTitle}}".

Chapter: {{.ParentTopic}}
Section title: {{.SectionTitle}}
{{- if .Focus}}
This section must cover:
{{- range .Focus}}
- {{.}}
{{- end}}
{{- end}}
{{- if .PreviousSections}}

For continuity, here is how the preceding sections ended:
{{- range .PreviousSections}}

### {{.Title}}
{{.Excerpt}}
{{- end}}
{{- end}}

Write about {{.TargetWords}} words of polished, specific prose in Markdown.
- Do not repeat the section title as a heading; sub-headings (###) are fine
- Do not restate material from the preceding sections
- Use concrete figures, examples and recommendations where they fit
- Where a chart or photo would help, add a line of the form [IMAGE: short description]
- Return only the section body, with no introduction or closing remarks`
}

// GetDefaultOutlineTemplate returns the default template for drafting an outline from a brief.
//
// Available data: Brief, Title, NumTopics.
func GetDefaultOutlineTemplate() string {
	return `Draft the outline of a long-form business document.

Brief:
{{.Brief}}
{{- if .Title}}

Working title: {{.Title}}
{{- end}}

Produce {{.NumTopics}} top-level chapters in a logical reading order. For every chapter list 4 to 8 sub-topics that a reader would expect it to cover.

Return ONLY a valid JSON object (no markdown, no additional text):
{"title": "Document title", "topics": [{"title": "Chapter title", "subtopics": ["Sub-topic 1", "Sub-topic 2"]}]}`
}
