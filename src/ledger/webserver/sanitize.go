package webserver

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// sanitizer strips markup from user supplied text. Long form fields keep
// the safe user content subset as HTML. Short fields are stored as plain
// text: tags are removed and entities decoded, so clients escape them on
// render like any other string.
type sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

func newSanitizer() sanitizer {
	return sanitizer{rich: bluemonday.UGCPolicy(), plain: bluemonday.StrictPolicy()}
}

func (s sanitizer) Rich(v string) string  { return s.rich.Sanitize(v) }
func (s sanitizer) Plain(v string) string { return html.UnescapeString(s.plain.Sanitize(v)) }
