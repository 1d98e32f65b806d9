// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts HTTP to the generation orchestrator, the
// image gallery and admin authentication, and owns the JSON envelopes the
// browser client depends on.
package api
