package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	VectorOnly bool   `json:"vector_only,omitempty" jsonschema:"rank by embedding similarity alone, skipping keyword matching"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchHit `json:"results" jsonschema:"ranked search results"`
	Total   int         `json:"total" jsonschema:"number of results returned"`
}

// SearchHit is one ranked result returned to the client.
type SearchHit struct {
	Path         string   `json:"path" jsonschema:"file path relative to project root"`
	StartLine    int      `json:"start_line" jsonschema:"first line of the matched chunk"`
	EndLine      int      `json:"end_line" jsonschema:"last line of the matched chunk"`
	Language     string   `json:"language,omitempty" jsonschema:"programming language of the file"`
	Content      string   `json:"content" jsonschema:"matched content snippet"`
	Score        float64  `json:"score" jsonschema:"fused relevance score, top hit is 1.0"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
}

// IndexStatusInput defines the input schema for the index_status tool.
// The tool takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project  ProjectInfo   `json:"project" jsonschema:"project identification"`
	Index    IndexInfo     `json:"index" jsonschema:"index contents summary"`
	Embedder EmbedderInfo  `json:"embedder" jsonschema:"active embedding backend"`
	Backends []BackendInfo `json:"backends" jsonschema:"vector backend health"`
	LastRun  *RunInfo      `json:"last_run,omitempty" jsonschema:"most recent indexing run, if any"`
}

// ProjectInfo identifies the project the server answers for.
type ProjectInfo struct {
	Name string `json:"name" jsonschema:"project directory name"`
	Root string `json:"root" jsonschema:"absolute path to the project root"`
}

// IndexInfo summarizes what the index holds.
type IndexInfo struct {
	Exists bool `json:"exists" jsonschema:"true when an index manifest is present"`
	Files  int  `json:"files" jsonschema:"number of indexed files"`
	Chunks int  `json:"chunks" jsonschema:"number of indexed chunks"`
}

// EmbedderInfo reports the embedding backend queries run through.
// AI clients use this to adjust search strategy: a static embedder means
// semantic ranking is weak and keyword terms matter more.
type EmbedderInfo struct {
	Model      string `json:"model" jsonschema:"embedding model name, or none"`
	Dimensions int    `json:"dimensions" jsonschema:"embedding vector width"`
	Available  bool   `json:"available" jsonschema:"true when the embedder answered a liveness probe"`
}

// BackendInfo reports one vector backend's health.
type BackendInfo struct {
	Name    string `json:"name" jsonschema:"backend name"`
	Status  string `json:"status" jsonschema:"healthy, degraded, or unavailable"`
	Vectors int    `json:"vectors" jsonschema:"vectors held by this backend"`
	Message string `json:"message,omitempty" jsonschema:"diagnostic detail when not healthy"`
}

// RunInfo reports the most recent indexing run recorded on disk.
type RunInfo struct {
	Status      string `json:"status" jsonschema:"running, complete, incomplete, or failed"`
	Stage       string `json:"stage,omitempty" jsonschema:"pipeline stage last entered"`
	Files       int    `json:"files" jsonschema:"files processed"`
	Chunks      int    `json:"chunks" jsonschema:"chunks written"`
	FailedFiles int    `json:"failed_files,omitempty" jsonschema:"files that could not be indexed"`
	Duration    string `json:"duration" jsonschema:"wall-clock run duration"`
	Error       string `json:"error,omitempty" jsonschema:"last recorded error for failed runs"`
}
