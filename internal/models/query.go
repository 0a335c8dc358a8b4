package models

// QueryMetadata holds structured fields extracted verbatim from a query.
// A nil field means the query did not mention it.
type QueryMetadata struct {
	Marche  *string `json:"marche"`
	Region  *string `json:"region"`
	Societe *string `json:"societe"`
	Version *string `json:"version"`
}

// Values returns the non-empty fields in declaration order.
func (q QueryMetadata) Values() []string {
	var out []string
	for _, v := range []*string{q.Marche, q.Region, q.Societe, q.Version} {
		if v != nil && *v != "" {
			out = append(out, *v)
		}
	}
	return out
}

// Empty reports whether no field is set.
func (q QueryMetadata) Empty() bool {
	return len(q.Values()) == 0
}
