package rdw

// Resource describes one RDW open data dataset queried per plate.
type Resource struct {
	Name     string
	Path     string
	Required bool
}

var (
	Basic    = Resource{Name: "basic", Path: "/resource/m9d7-ebf2.json", Required: true}
	Fuel     = Resource{Name: "fuel", Path: "/resource/8ys7-d773.json", Required: true}
	Body     = Resource{Name: "body", Path: "/resource/vezc-m2t6.json"}
	BodySpec = Resource{Name: "body_spec", Path: "/resource/jhie-znh9.json"}
)

// DefaultResources returns the dataset set the proxy queries. The body
// datasets are optional and can be left out entirely.
func DefaultResources(withBody bool) []Resource {
	resources := []Resource{Basic, Fuel}
	if withBody {
		resources = append(resources, Body, BodySpec)
	}
	return resources
}
