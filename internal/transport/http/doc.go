// Package http implements the HTTP handlers of the valuepulse API.
//
// Handlers stay thin: they parse and validate the request, call a service
// and render the result. Service errors are mapped to API errors in one
// place (toAPIError) and rendered as RFC 7807 problem details by the
// shared error handler.
//
// Successful list responses use one envelope:
//
//	{"status": "success", "data": [...], "count": 3}
//
// Routes are mounted by the app package under the versioned prefix
// (default /api/v1):
//
//	GET  /value_prediction/predict   ?league&position&country&limit
//	GET  /value_prediction/player    ?player
//	GET  /value_prediction/team      ?team
//	GET  /value_prediction/league    ?league&limit
//	GET  /dropdowns/get
//	GET  /operations                 ?status
//	POST /operations
//	GET  /operations/pipelines
//	GET  /operations/metrics
//	GET  /operations/{id}
//	POST /operations/{id}/cancel
//
// Health and version routes sit outside the prefix.
package http
