// Package action parses the action tags embedded in model output and runs
// them against a virtual file store.
package action

import (
	"strings"

	"github.com/nstogner/forge/pkg/domain"
)

const (
	actionTag = "action"
	bundleTag = "boltArtifact"
)

// Bundle is an outer wrapper grouping actions under an id and title.
type Bundle struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Actions []domain.Action `json:"actions"`
}

// Parse returns every well-formed action in text, in source order.
// Surrounding prose is ignored. Malformed tags, unknown types, and file
// actions without a filePath yield nothing.
func Parse(text string) []domain.Action {
	var actions []domain.Action
	for _, el := range scanElements(text, actionTag) {
		if a, ok := toAction(el); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func toAction(el element) (domain.Action, bool) {
	content := strings.TrimSpace(el.body)
	switch domain.ActionType(el.attrs["type"]) {
	case domain.ActionFile:
		path := el.attrs["filePath"]
		if strings.TrimSpace(path) == "" {
			return domain.Action{}, false
		}
		return domain.Action{Type: domain.ActionFile, FilePath: path, Content: content}, true
	case domain.ActionShell:
		if content == "" {
			return domain.Action{}, false
		}
		return domain.Action{Type: domain.ActionShell, Content: content}, true
	default:
		return domain.Action{}, false
	}
}

// ParseBundle parses the first <boltArtifact> wrapper in text. ok is false
// when text has no well-formed wrapper.
func ParseBundle(text string) (Bundle, bool) {
	els := scanElements(text, bundleTag)
	if len(els) == 0 {
		return Bundle{}, false
	}
	el := els[0]
	return Bundle{
		ID:      el.attrs["id"],
		Title:   el.attrs["title"],
		Actions: Parse(el.body),
	}, true
}
