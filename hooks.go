package carepulse

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Hospital is an entry of the hospital list.
type Hospital struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Locality is a locality served by a hospital.
type Locality struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Hospital int    `json:"hospital"`
}

// AnalyticsFilter selects an analytics slice. All fields are required.
type AnalyticsFilter struct {
	Disease string
	Year    int
	OrgName string
}

// TrendFilter selects a trend series. All fields are required.
type TrendFilter struct {
	Disease  string
	Year     int
	OrgName  string
	Locality string
}

// Hospitals lists all hospitals. Cached as reference data.
func (c *Client) Hospitals() Query[[]Hospital] {
	return newQuery(c, mustResource(ResourceHospitals), nil, decodeJSON[[]Hospital])
}

// LocalitiesByHospital lists the localities of a hospital. Disabled while
// hospitalID is zero.
func (c *Client) LocalitiesByHospital(hospitalID int) Query[[]Locality] {
	return newQuery(c, mustResource(ResourceLocalities), []string{itoa(hospitalID)}, decodeJSON[[]Locality])
}

// NHIAStatus returns NHIA coverage for a disease. Year is optional; zero
// leaves it out of the request.
func (c *Client) NHIAStatus(disease string, year int) Query[json.RawMessage] {
	return c.analytics(ResourceNHIAStatus, disease, itoa(year))
}

// PregnancyStatus returns pregnancy status counts for a disease. Year is
// optional; zero leaves it out of the request.
func (c *Client) PregnancyStatus(disease string, year int) Query[json.RawMessage] {
	return c.analytics(ResourcePregnancyStatus, disease, itoa(year))
}

// PrincipalDiagnoses returns principal diagnosis counts.
func (c *Client) PrincipalDiagnoses(f AnalyticsFilter) Query[json.RawMessage] {
	return c.analytics(ResourcePrincipalDiagnoses, f.Disease, itoa(f.Year), f.OrgName)
}

// AdditionalDiagnoses returns additional diagnosis counts.
func (c *Client) AdditionalDiagnoses(f AnalyticsFilter) Query[json.RawMessage] {
	return c.analytics(ResourceAdditionalDiagnoses, f.Disease, itoa(f.Year), f.OrgName)
}

// SexDistribution returns case counts by sex.
func (c *Client) SexDistribution(f AnalyticsFilter) Query[json.RawMessage] {
	return c.analytics(ResourceSexDistribution, f.Disease, itoa(f.Year), f.OrgName)
}

// AgeDistribution returns case counts by age band.
func (c *Client) AgeDistribution(f AnalyticsFilter) Query[json.RawMessage] {
	return c.analytics(ResourceAgeDistribution, f.Disease, itoa(f.Year), f.OrgName)
}

// Trends returns the case series for one locality.
func (c *Client) Trends(f TrendFilter) Query[json.RawMessage] {
	return c.analytics(ResourceTrends, f.Disease, itoa(f.Year), f.OrgName, f.Locality)
}

// Query builds a query for any registered resource from named params. It
// backs config-driven cards and the CLI.
//
// Returns an error wrapping [ErrUnknownResource] for an unknown resource or
// parameter name. Missing params do not fail here; they disable the query.
func (c *Client) Query(resource string, params map[string]string) (Query[json.RawMessage], error) {
	res, ok := LookupResource(resource)
	if !ok {
		return Query[json.RawMessage]{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	values, err := res.Values(params)
	if err != nil {
		return Query[json.RawMessage]{}, err
	}
	return newQuery(c, res, values, decodeRaw), nil
}

func (c *Client) analytics(name string, values ...string) Query[json.RawMessage] {
	return newQuery(c, mustResource(name), values, decodeRaw)
}

func mustResource(name string) Resource {
	res, ok := LookupResource(name)
	if !ok {
		panic("carepulse: resource not registered: " + name)
	}
	return res
}

// itoa maps the zero value to "" so it counts as absent.
func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
