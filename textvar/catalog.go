package textvar

import (
	"cardstudio/core"
	"regexp"
	"strings"
)

// Variable is a placeholder that can appear in invitation text.
type Variable struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Default string `json:"default"`
}

var catalog = []Variable{
	newVariable("nom", "Nom de l'invité", "Invité"),
	newVariable("prenom", "Prénom de l'invité", "Cher"),
	newVariable("evenement", "Nom de l'événement", "notre événement"),
	newVariable("date", "Date de l'événement", "à préciser"),
	newVariable("heure", "Heure de l'événement", "18:00"),
	newVariable("lieu", "Lieu de l'événement", "à préciser"),
	newVariable("organisateur", "Organisateur", "L'équipe"),
}

var byName = func() map[string]Variable {
	m := make(map[string]Variable, len(catalog))
	for _, v := range catalog {
		m[v.Name] = v
	}
	return m
}()

var placeholder = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

func newVariable(name, label, def string) Variable {
	return Variable{Key: "{{" + name + "}}", Name: name, Label: label, Default: def}
}

// Catalog returns the known variables in display order.
func Catalog() []Variable {
	out := make([]Variable, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the variable for a name ("nom") or a key ("{{nom}}").
func Lookup(name string) (Variable, bool) {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "{{"), "}}")
	v, ok := byName[name]
	return v, ok
}

// Substitute replaces every known placeholder in template with its value
// from values, or with the catalog default when values has none. values may
// be keyed by name ("nom") or by key ("{{nom}}"). Unknown placeholders stay
// as they are. Replacement is a single pass: placeholders inside values are
// not expanded.
func Substitute(template string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		v, ok := byName[name]
		if !ok {
			return match
		}
		if value, ok := values[name]; ok {
			return value
		}
		if value, ok := values[v.Key]; ok {
			return value
		}
		return v.Default
	})
}

// ValuesFor derives the runtime values of an invitation: recipient name and
// event details. Empty fields are left out so the defaults apply.
func ValuesFor(inv *core.Invitation) map[string]string {
	values := make(map[string]string)
	put := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			values[name] = value
		}
	}

	name := strings.TrimSpace(inv.Recipient.Name)
	put("nom", name)
	if first, _, found := strings.Cut(name, " "); found {
		put("prenom", first)
	} else {
		put("prenom", name)
	}

	if inv.Event != nil {
		put("evenement", inv.Event.Title)
		put("date", inv.Event.Date)
		put("heure", inv.Event.Time)
		put("lieu", inv.Event.Location)
	}
	put("organisateur", inv.Organizer)
	return values
}
