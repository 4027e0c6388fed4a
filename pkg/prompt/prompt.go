// Package prompt builds the text sent to models.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nstogner/forge/pkg/domain"
)

// GenerateSystem instructs a model to answer with one self-contained page.
const GenerateSystem = `You are an expert front-end engineer. Produce a single, self-contained HTML document
that fulfils the request. Inline all CSS and JavaScript. Answer with exactly one fenced
block that starts with ` + "```html" + ` and nothing else.`

// ActionSystem teaches a model the action tag language used by plan execution.
const ActionSystem = `You are implementing one step of a software project.
Express every change as action tags:
  <action type="file" filePath="relative/path.ext">full file content</action>
  <action type="shell">command to run</action>
Always write complete file contents, never diffs. Keep prose outside the tags short.`

// Fields are the user-supplied inputs of a generation request.
type Fields struct {
	Query       string
	CurrentHTML string
	Feedback    string
	Theme       string
}

// Build renders the generation prompt. It is a pure function of f.
func Build(f Fields) string {
	var b strings.Builder
	if html := strings.TrimSpace(f.CurrentHTML); html != "" {
		b.WriteString("Here is the current page:\n```html\n")
		b.WriteString(html)
		b.WriteString("\n```\n\n")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		b.WriteString("Request: ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	if fb := strings.TrimSpace(f.Feedback); fb != "" {
		b.WriteString("Apply this feedback: ")
		b.WriteString(fb)
		b.WriteString("\n")
	}
	if th := strings.TrimSpace(f.Theme); th != "" {
		fmt.Fprintf(&b, "Use a %s visual theme.\n", th)
	}
	return strings.TrimSpace(b.String())
}

// DescribeImage is the instruction sent with a drawing to the vision models.
const DescribeImage = "Describe this UI sketch precisely: layout, components, labels and any annotations. " +
	"The description will be used to build the page."

// PlanSummary renders a plan as plain text.
func PlanSummary(p *domain.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objectives: %s\n", p.Objectives)
	if len(p.Requirements) > 0 {
		b.WriteString("Requirements:\n")
		for _, r := range p.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if p.Technologies != "" {
		fmt.Fprintf(&b, "Technologies: %s\n", p.Technologies)
	}
	if p.Architecture != "" {
		fmt.Fprintf(&b, "Architecture: %s\n", p.Architecture)
	}
	if len(p.Implementation) > 0 {
		b.WriteString("Implementation steps:\n")
		for i, s := range p.Implementation {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Step)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// StepPrompt renders the request for step index (zero based) of p. files is
// the accumulated file set; each file's content is cut to limit bytes when
// limit is positive, backing off to a rune boundary.
func StepPrompt(p *domain.Plan, index int, files []domain.VirtualFile, limit int) string {
	step := p.Implementation[index]
	var b strings.Builder
	b.WriteString("Project plan:\n")
	b.WriteString(PlanSummary(p))
	fmt.Fprintf(&b, "\n\nCurrent task: step %d of %d: %s\n", index+1, len(p.Implementation), step.Step)
	if step.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", step.Description)
	}
	if len(files) > 0 {
		b.WriteString("\nFiles created so far:\n")
		for _, f := range files {
			content := f.Content
			if limit > 0 && len(content) > limit {
				content = truncate(content, limit) + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "--- %s ---\n%s\n", f.Path, content)
		}
	}
	b.WriteString("\nRespond with the action tags for this step only.")
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
