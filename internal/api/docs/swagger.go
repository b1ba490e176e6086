package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// BatchResponse documents the answer to an accepted upload
type BatchResponse struct {
	BatchID  string           `json:"batch_id" example:"6f1c2a8e-3b7d-4e0a-9c51-2d4f8b9e7a10"`
	Accepted int              `json:"accepted" example:"48"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// RejectedRecord documents a record refused on its own
type RejectedRecord struct {
	LocalID   int64  `json:"local_id" example:"1042"`
	Reason    string `json:"reason" example:"type must be IN or OUT"`
	Permanent bool   `json:"permanent" example:"true"`
}

// ConflictDetail documents the record that already exists
type ConflictDetail struct {
	IdentityCode string `json:"identity_code" example:"E1024"`
	Timestamp    int64  `json:"timestamp" example:"1700000000000"`
	Type         string `json:"type" example:"IN"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// ConflictResponse is the 409 body of a batch upload
type ConflictResponse struct {
	Code     string         `json:"code" example:"DUPLICATE_RECORD"`
	Message  string         `json:"message" example:"Attendance record already exists"`
	Conflict ConflictDetail `json:"conflict"`
}

// RosterIdentity documents one enrolled identity
type RosterIdentity struct {
	Code        string    `json:"code" example:"E1024"`
	DisplayName string    `json:"display_name" example:"Ana Souza"`
	Active      bool      `json:"active" example:"true"`
	Embedding   []float32 `json:"embedding"`
	UpdatedAt   string    `json:"updated_at" example:"2026-01-05T08:00:00Z"`
}

// RosterResponse documents GET /v1/roster
type RosterResponse struct {
	Identities []RosterIdentity `json:"identities"`
}

// SiteStatusResponse documents GET /v1/site
type SiteStatusResponse struct {
	Site    string `json:"site" example:"plant-north"`
	Name    string `json:"name" example:"North plant"`
	Records int    `json:"records" example:"15230"`
}

func siteHeaders() []*parameter.Parameter {
	return []*parameter.Parameter{
		parameter.StrParam("X-Site-ID", parameter.Header, parameter.WithDescription("Site slug")),
		parameter.StrParam("X-Device-ID", parameter.Header, parameter.WithDescription("Uploading terminal (optional)")),
	}
}

var authErrors = []response.Response{
	response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing sync credential"}, "401", "Unauthorized"),
	response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests"}, "429", "Too Many Requests"),
	response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error"),
}

func withAuthErrors(rs ...response.Response) []response.Response {
	return append(rs, authErrors...)
}

// NewSwagger describes the authority API.
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Ponto Authority API",
		Version:     "v1.0.0",
		Description: "Reconciliation authority for offline attendance terminals. Terminals authenticate with their site slug and sync code.",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/attendance/batch
		endpoint.New(
			endpoint.POST,
			"/attendance/batch",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Upload a batch of attendance events"),
			endpoint.WithDescription("Stores every record of the batch in one transaction. Malformed records are rejected individually and permanently. A record that already exists answers 409 and identifies it under error.conflict; nothing of the batch is stored in that case."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(siteHeaders()...),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(BatchResponse{}, "200", "Batch stored"),
			}),
			endpoint.WithErrors(withAuthErrors(
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ConflictResponse{}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "BATCH_TOO_LARGE", Message: "Batch exceeds the maximum number of records"}, "413", "Payload Too Large"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "batch_id is required"}, "422", "Unprocessable Entity"),
			)),
			endpoint.WithSecurity([]map[string][]string{{"SyncCodeAuth": {}}}),
		),

		// GET /v1/roster
		endpoint.New(
			endpoint.GET,
			"/roster",
			endpoint.WithTags("Roster"),
			endpoint.WithSummary("Download the enrolled roster of the site"),
			endpoint.WithDescription("Returns every active identity of the site that has an embedding. Terminals replace their local roster with this list."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(siteHeaders()...),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RosterResponse{}, "200", "Roster"),
			}),
			endpoint.WithErrors(withAuthErrors()),
			endpoint.WithSecurity([]map[string][]string{{"SyncCodeAuth": {}}}),
		),

		// GET /v1/site
		endpoint.New(
			endpoint.GET,
			"/site",
			endpoint.WithTags("Site"),
			endpoint.WithSummary("Show what the authority holds for the site"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(siteHeaders()...),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SiteStatusResponse{}, "200", "Site status"),
			}),
			endpoint.WithErrors(withAuthErrors()),
			endpoint.WithSecurity([]map[string][]string{{"SyncCodeAuth": {}}}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
