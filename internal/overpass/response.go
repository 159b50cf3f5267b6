package overpass

// Response is the JSON body of an interpreter call with [out:json].
type Response struct {
	Version   float64 `json:"version"`
	Generator string  `json:"generator"`
	OSM3S     struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
		Copyright        string `json:"copyright"`
	} `json:"osm3s"`

	// Elements is nil when the key is absent and empty when the query
	// matched nothing.
	Elements []Element `json:"elements"`

	// Remark is set when the server aborted the query, typically on a
	// runtime or memory limit, and may come with partial elements.
	Remark string `json:"remark,omitempty"`
}

// Element is a node or way. Relations are decoded but not used.
type Element struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat,omitempty"`
	Lon   float64           `json:"lon,omitempty"`
	Nodes []int64           `json:"nodes,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Element types.
const (
	TypeNode     = "node"
	TypeWay      = "way"
	TypeRelation = "relation"
)
