package search

// Result is a single project hit returned to the caller.
type Result struct {
	ProjectID      string `json:"projectID"`
	Title          string `json:"title"`
	Snippet        string `json:"snippet"`
	Status         string `json:"status"`
	Visibility     string `json:"visibility"`
	Classification string `json:"classification,omitempty"`
}

// Query describes a project search request. Only generally visible projects
// (public, or available for adoption) are searchable.
type Query struct {
	Text   string
	OrgID  string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ProjectID      string   `json:"projectID"`
	OrgID          string   `json:"orgID"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Classification string   `json:"classification"`
	Status         string   `json:"status"`
	Visibility     string   `json:"visibility"`
	Tags           []string `json:"tags"`
}
