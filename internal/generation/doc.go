// Package generation orchestrates image generation against an external
// provider. It abstracts the details of the provider integration (Vertex AI /
// Gemini image models) behind the Provider interface and contains the three
// pieces of logic that decide how a request behaves under failure:
//
//   - Retrier: bounded retries with exponential backoff and jitter, retrying
//     only transient provider statuses (408, 429, 502, 503).
//   - Classify: maps a terminal provider failure onto a fixed taxonomy of nine
//     error kinds, each with a user message, remediation suggestions and a
//     retryable flag.
//   - Orchestrator: fans a request for N images out to N provider calls under
//     a bounded-concurrency limiter, stores each image and aggregates the
//     results all-or-nothing.
//
// SessionRegistry adds supersession on top: a newer generation started by the
// same caller session cancels the older one, and stale results are dropped.
package generation
