package rest

import "net/http"

// RouterDeps collects the handlers mounted by NewRouter.
type RouterDeps struct {
	API    *APIHandler
	Orgs   *OrgsHandler
	Files  *FilesHandler
	Health *HealthHandler
}

// NewRouter builds the route table. Middleware wrapping happens in the
// app layer so the bare router stays testable.
func NewRouter(d RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz/live", d.Health.Live)
	mux.HandleFunc("GET /healthz/ready", d.Health.Ready)
	mux.HandleFunc("GET /health", d.Health.Health)

	mux.HandleFunc("GET /api/tables", d.API.Tables)
	// Literal routes are more specific than the table wildcard and win
	// during matching.
	mux.HandleFunc("POST /api/files/upload", d.Files.Upload)
	mux.HandleFunc("GET /blobs/{id}", d.Files.Download)

	mux.HandleFunc("POST /api/orgs/create", d.Orgs.Create())
	mux.HandleFunc("POST /api/orgs/rename", d.Orgs.Rename())
	mux.HandleFunc("POST /api/orgs/isSlugAvailable", d.Orgs.IsSlugAvailable())
	mux.HandleFunc("POST /api/orgs/get", d.Orgs.Get())
	mux.HandleFunc("POST /api/orgs/addMember", d.Orgs.AddMember())
	mux.HandleFunc("POST /api/orgs/setAdmin", d.Orgs.SetAdmin())
	mux.HandleFunc("POST /api/orgs/removeMember", d.Orgs.RemoveMember())
	mux.HandleFunc("POST /api/orgs/members", d.Orgs.Members())

	mux.HandleFunc("POST /api/{table}/{op}", d.API.Dispatch)

	return mux
}
