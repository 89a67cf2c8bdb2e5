package carepulse

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode"
)

// NewCardGrid creates multiple cards from a templated base card and
// dimensions using cartesian product expansion.
//
// The base card's Title, Description and Params values use Go's
// text/template syntax with dimension keys as variables. Missing template
// keys cause an error (fail-fast).
//
// Each card is derived from the base:
//   - ID is "<base ID>-<values>", values slugged and ordered by sorted keys
//   - Title is rendered from the template, or "Base Title (val1/val2)" when
//     the base title has no template actions
//   - Params are filled from dimensions naming a resource parameter, then
//     overridden by rendered base Params, then by [WithGridParams]
//
// Example:
//
//	cards, err := NewCardGrid(CardSpec{
//	    ID:       "nhia",
//	    Title:    "NHIA {{.disease_name}}",
//	    Resource: ResourceNHIAStatus,
//	    Field:    "insured",
//	}, WithDimensions(map[string][]string{
//	    "disease_name": {"Malaria", "Typhoid"},
//	}))
//	// Returns 2 cards, usable with WithCards(cards...)
func NewCardGrid(base CardSpec, opts ...GridOption) ([]CardSpec, error) {
	if strings.TrimSpace(base.ID) == "" {
		return nil, errors.New("base card ID cannot be empty")
	}
	res, ok := LookupResource(base.Resource)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownResource, base.Resource)
	}

	cfg := &gridConfig{
		paramNames:   make(map[string]string),
		staticParams: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	paramSet := make(map[string]bool, len(res.Params))
	for _, name := range res.ParamNames() {
		paramSet[name] = true
	}
	for dim, param := range cfg.paramNames {
		if _, ok := cfg.dimensions[dim]; !ok {
			return nil, fmt.Errorf("dimension '%s' mapped to parameter '%s' is not defined", dim, param)
		}
		if !paramSet[param] {
			return nil, fmt.Errorf("resource %q has no parameter '%s'", res.Name, param)
		}
	}

	// parse templates with missingkey=error for fail-fast behaviour
	titleTmpl, err := parseTemplate("title", base.Title)
	if err != nil {
		return nil, err
	}
	descTmpl, err := parseTemplate("description", base.Description)
	if err != nil {
		return nil, err
	}
	paramTmpls := make(map[string]*template.Template, len(base.Params))
	for name, value := range base.Params {
		tmpl, err := parseTemplate("param "+name, value)
		if err != nil {
			return nil, err
		}
		paramTmpls[name] = tmpl
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	cards := make([]CardSpec, 0, len(combinations))
	for _, combo := range combinations {
		card := base
		card.ID = formatCardID(base.ID, combo)

		if strings.Contains(base.Title, "{{") {
			if card.Title, err = executeTemplate(titleTmpl, combo); err != nil {
				return nil, fmt.Errorf("card %q title: %w", card.ID, err)
			}
		} else {
			card.Title = formatCardTitle(base.Title, combo)
		}
		if card.Description, err = executeTemplate(descTmpl, combo); err != nil {
			return nil, fmt.Errorf("card %q description: %w", card.ID, err)
		}

		// merge params: dimensions first, then base templates, then static
		params := make(map[string]string)
		for dim, value := range combo {
			name := dim
			if mapped, ok := cfg.paramNames[dim]; ok {
				name = mapped
			}
			if paramSet[name] {
				params[name] = value
			}
		}
		for name, tmpl := range paramTmpls {
			if params[name], err = executeTemplate(tmpl, combo); err != nil {
				return nil, fmt.Errorf("card %q param %s: %w", card.ID, name, err)
			}
		}
		card.Params = mergeMaps(params, cfg.staticParams)

		cards = append(cards, card)
	}

	return cards, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid %s template: %w", name, err)
	}
	return tmpl, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)

	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatCardTitle creates a title in the format "Base (v1/v2)".
// Values are ordered by sorted keys for consistent naming.
func formatCardTitle(baseTitle string, combo map[string]string) string {
	return fmt.Sprintf("%s (%s)", baseTitle, strings.Join(comboValues(combo), "/"))
}

// formatCardID creates an ID in the format "base-v1-v2" with slugged values.
func formatCardID(baseID string, combo map[string]string) string {
	values := comboValues(combo)
	for i, v := range values {
		values[i] = slug(v)
	}
	return baseID + "-" + strings.Join(values, "-")
}

func comboValues(combo map[string]string) []string {
	keys := sortedKeys(combo)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = combo[k]
	}
	return values
}

// slug lowercases s and collapses every run of non-alphanumerics into "-".
func slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeMaps merges multiple maps, with later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
