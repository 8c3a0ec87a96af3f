package domain

// PaginationOpts are the caller-supplied cursor parameters. An empty
// Cursor starts from the beginning.
type PaginationOpts struct {
	Cursor   string `json:"cursor"`
	NumItems int    `json:"numItems"`
}

// Page is one page of enriched documents following the store's cursor
// contract: feed ContinueCursor back to get the next page until IsDone.
type Page struct {
	Page           []EnrichedDocument `json:"page"`
	ContinueCursor string             `json:"continueCursor"`
	IsDone         bool               `json:"isDone"`
}

// DocumentPage is the unenriched page shape returned by the store.
type DocumentPage struct {
	Page           []Document
	ContinueCursor string
	IsDone         bool
}
