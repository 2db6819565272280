package issue

import "strings"

// Snippet is one fenced code block lifted from issue markdown.
type Snippet struct {
	// Language is the fence's info string ("ts", "typescript", ...), lowered.
	// Empty when the fence had none.
	Language string
	Code     string
}

// ExtractSnippets pulls fenced code blocks (``` fences) out of markdown.
// Unterminated fences run to the end of the text, matching how GitHub
// renders them.
func ExtractSnippets(markdown string) []Snippet {
	var snippets []Snippet
	lines := strings.Split(markdown, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "```")))

		var body []string
		for i++; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "```" {
				break
			}
			body = append(body, lines[i])
		}

		code := strings.Join(body, "\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		snippets = append(snippets, Snippet{Language: lang, Code: code})
	}
	return snippets
}

// TypeScriptSnippets filters snippets to those plausibly TypeScript or
// JavaScript, including unlabeled blocks.
func TypeScriptSnippets(snippets []Snippet) []Snippet {
	var out []Snippet
	for _, s := range snippets {
		switch s.Language {
		case "", "ts", "tsx", "typescript", "js", "jsx", "javascript":
			out = append(out, s)
		}
	}
	return out
}

// FileExtension maps a snippet's language to the file extension a scratch
// workspace should use for it.
func (s Snippet) FileExtension() string {
	switch s.Language {
	case "tsx":
		return ".tsx"
	case "js", "javascript":
		return ".js"
	case "jsx":
		return ".jsx"
	default:
		return ".ts"
	}
}
