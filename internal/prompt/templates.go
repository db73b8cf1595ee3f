package prompt

import "text/template"

// systemTemplateText lays out the bounded system prompt: persona first,
// then reference documents, then the memory sections with character-scoped
// facts ahead of global ones so the closer, more specific facts take
// priority in the model's attention.
const systemTemplateText = `{{.SystemPrompt}}
{{- if .Documents}}

**Reference Documents:**
{{- range .Documents}}

### {{.Filename}}
{{.Content}}
{{- end}}
{{- end}}
{{- if .CharacterMemories}}

**What you remember about this user:**
{{- range .CharacterMemories}}
- {{.Content}}
{{- end}}
{{- end}}
{{- if .GlobalMemories}}

**General facts about this user:**
{{- range .GlobalMemories}}
- {{.Content}}
{{- end}}
{{- end}}
{{- if .GameLines}}

**Current Game State:**
{{- range .GameLines}}
{{.}}
{{- end}}
{{- end}}
{{- if .Speaker}}

**Note:** This message is from {{.Speaker}}, another character in the world. Respond as if speaking to them directly.
{{- end}}`

var systemTemplate = template.Must(template.New("system").Parse(systemTemplateText))
