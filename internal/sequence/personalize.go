package sequence

import (
	"regexp"

	"github.com/kode4food/cadence/pkg/api"
)

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Personalize substitutes contact fields into tpl. A placeholder whose
// field is unknown or empty is left in the output literally
func Personalize(tpl string, contact *api.Contact) string {
	if tpl == "" || contact == nil {
		return tpl
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := contact.Field(name); ok && v != "" {
			return v
		}
		return m
	})
}

// Unresolved returns the placeholders of tpl that Personalize would leave
// in place for contact
func Unresolved(tpl string, contact *api.Contact) []string {
	var res []string
	for _, m := range placeholder.FindAllStringSubmatch(tpl, -1) {
		if v, ok := contact.Field(m[1]); !ok || v == "" {
			res = append(res, m[0])
		}
	}
	return res
}
