// Package expand renders message templates containing %name% placeholders.
package expand

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`%([a-zA-Z_]+)%`)

// Values are the per-call substitutions. Values are rendered with fmt.Sprint,
// so decimals and numbers print in their natural form.
type Values map[string]any

// Expander resolves placeholders by precedence: per-call values, then coin
// settings, then session globals. Unknown placeholders are left verbatim.
type Expander struct {
	coin    map[string]string
	globals func() map[string]string
}

// New creates an Expander. globals is consulted on every call so values that
// change during a session (the bot's current nick) stay fresh.
func New(coin map[string]string, globals func() map[string]string) *Expander {
	if coin == nil {
		coin = map[string]string{}
	}
	return &Expander{coin: coin, globals: globals}
}

// Expand renders a single template.
func (e *Expander) Expand(tmpl string, values Values) string {
	var global map[string]string
	if e.globals != nil {
		global = e.globals()
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[1 : len(token)-1]
		if v, ok := values[name]; ok {
			return fmt.Sprint(v)
		}
		if v, ok := e.coin[name]; ok {
			return v
		}
		if v, ok := global[name]; ok {
			return v
		}
		return token
	})
}

// Lines renders every template line and joins them with sep.
func (e *Expander) Lines(lines []string, values Values, sep string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, e.Expand(l, values))
	}
	return strings.Join(out, sep)
}
