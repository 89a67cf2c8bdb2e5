package carepulse

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Param is a named query-string parameter of a [Resource].
type Param struct {
	// Name is the query-string key.
	Name string

	// Rule is a validator tag the value must satisfy for the query to be
	// enabled, e.g. "required" or "omitempty,numeric".
	Rule string
}

// Required reports whether the parameter must be present.
func (p Param) Required() bool {
	return p.Rule != "" && validate.Var("", p.Rule) != nil
}

// Resource describes one REST resource of the analytics API.
type Resource struct {
	// Name is the first element of every query key for the resource.
	Name string

	// Path is relative to the API base URL and ends in a slash.
	Path string

	// Params are appended to the query string in this order.
	Params []Param

	// Config is the caching tier of the resource.
	Config QueryConfig
}

// Resource names.
const (
	ResourceHospitals           = "hospitals"
	ResourceLocalities          = "hospital-localities"
	ResourceNHIAStatus          = "nhia-status"
	ResourcePregnancyStatus     = "pregnancy-status"
	ResourcePrincipalDiagnoses  = "principal-diagnoses"
	ResourceAdditionalDiagnoses = "additional-diagnoses"
	ResourceSexDistribution     = "sex-distribution"
	ResourceAgeDistribution     = "age-distribution"
	ResourceTrends              = "trends"
)

var (
	analyticsParams = []Param{
		{Name: "disease", Rule: "required"},
		{Name: "year", Rule: "required,numeric"},
		{Name: "orgname", Rule: "required"},
	}
	statusParams = []Param{
		{Name: "disease_name", Rule: "required"},
		{Name: "year", Rule: "omitempty,numeric"},
	}
)

var registry = []Resource{
	{
		Name:   ResourceHospitals,
		Path:   "hospitals/",
		Config: TierReference,
	},
	{
		Name:   ResourceLocalities,
		Path:   "hospital-localities/by-hospital/",
		Params: []Param{{Name: "hospital", Rule: "required,numeric"}},
		Config: TierScoped,
	},
	{Name: ResourceNHIAStatus, Path: "analytics/nhia-status/", Params: statusParams, Config: TierAnalytics},
	{Name: ResourcePregnancyStatus, Path: "analytics/pregnancy-status/", Params: statusParams, Config: TierAnalytics},
	{Name: ResourcePrincipalDiagnoses, Path: "analytics/principal-diagnoses/", Params: analyticsParams, Config: TierAnalytics},
	{Name: ResourceAdditionalDiagnoses, Path: "analytics/additional-diagnoses/", Params: analyticsParams, Config: TierAnalytics},
	{Name: ResourceSexDistribution, Path: "analytics/sex-distribution/", Params: analyticsParams, Config: TierAnalytics},
	{Name: ResourceAgeDistribution, Path: "analytics/age-distribution/", Params: analyticsParams, Config: TierAnalytics},
	{
		Name: ResourceTrends,
		Path: "analytics/trends/",
		Params: []Param{
			{Name: "disease", Rule: "required"},
			{Name: "year", Rule: "required,numeric"},
			{Name: "orgname", Rule: "required"},
			{Name: "locality", Rule: "required"},
		},
		Config: TierAnalytics,
	},
}

var registryByName = func() map[string]Resource {
	m := make(map[string]Resource, len(registry))
	for _, r := range registry {
		m[r.Name] = r
	}
	return m
}()

// LookupResource returns the resource registered under name.
func LookupResource(name string) (Resource, bool) {
	r, ok := registryByName[name]
	if !ok {
		return Resource{}, false
	}
	return r.clone(), true
}

// Resources returns all registered resources sorted by name.
func Resources() []Resource {
	out := make([]Resource, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParamNames returns the parameter names in declaration order.
func (r Resource) ParamNames() []string {
	names := make([]string, len(r.Params))
	for i, p := range r.Params {
		names[i] = p.Name
	}
	return names
}

// Values orders params by declaration, filling absent ones with "".
// Returns an error wrapping [ErrUnknownResource] for a param the resource
// does not declare.
func (r Resource) Values(params map[string]string) ([]string, error) {
	known := make(map[string]int, len(r.Params))
	for i, p := range r.Params {
		known[p.Name] = i
	}
	values := make([]string, len(r.Params))
	for name, v := range params {
		i, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownResource, r.Name, name)
		}
		values[i] = v
	}
	return values, nil
}

// enabled reports whether every value passes its parameter's rule.
func (r Resource) enabled(values []string) bool {
	if len(values) != len(r.Params) {
		return false
	}
	for i, p := range r.Params {
		if p.Rule == "" {
			continue
		}
		if err := validate.Var(values[i], p.Rule); err != nil {
			return false
		}
	}
	return true
}

func (r Resource) path(values []string) string {
	qs := buildQuery(r.ParamNames(), values)
	if qs == "" {
		return r.Path
	}
	return r.Path + "?" + qs
}

func (r Resource) clone() Resource {
	params := make([]Param, len(r.Params))
	copy(params, r.Params)
	r.Params = params
	return r
}
