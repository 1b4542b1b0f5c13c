package feedback

import (
	"context"
	"fmt"
	"strings"
)

// Template is the default generator. It renders a fixed markdown review
// interpolating the submitted language name. It is deterministic and cannot
// fail, so submissions using it never observe a FAILED review.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (t *Template) Generate(_ context.Context, language, _ string) (string, error) {
	lang := strings.TrimSpace(language)

	return fmt.Sprintf(`## Code Review Results for %s

### Strengths
- Code structure appears well-organized
- Variable naming follows conventions
- Proper indentation and formatting

### Areas for Improvement
1. **Error Handling**: Consider adding error handling for better failure management
2. **Code Comments**: Add more descriptive comments to explain complex logic
3. **Performance**: Look for opportunities to optimize loops and data structures

### Specific Suggestions
- Prefer immutable bindings where values do not change
- Break down large functions into smaller, more manageable pieces
- Add input validation for function parameters

### Best Practices
- Follow the DRY (Don't Repeat Yourself) principle
- Use meaningful variable and function names
- Consider adding unit tests for better code reliability

### Overall Score: 7.5/10
Your code shows good understanding of %s fundamentals. Focus on error handling and code documentation for improvement.
`, strings.ToUpper(lang), strings.ToLower(lang)), nil
}
