// Package http implements the HTTP handlers of the retail analytics service.
// Handlers stay thin: they parse multipart uploads and query parameters,
// call the service layer and render JSON, CSV or XLSX.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → AnalyticsService
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Uploads
//
// Analytics endpoints accept multipart/form-data with one file part per
// entity type: sales, stores, products and inventory. Every request parses
// its own tables; nothing is cached between requests.
//
// # Errors
//
// Service errors are converted to API errors where the handler knows more
// (a missing upload, a rejected table) and otherwise passed to
// errors.ErrorHandler, which renders RFC 7807 problem details.
package http
