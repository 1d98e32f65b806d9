// Package gemini provides an implementation of the generation.Provider interface
// that uses Google's generative image models, through either Vertex AI or the
// Gemini API, to produce one image per call.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the generation pipeline to Google's external service without
// exposing the genai client to the rest of the application.
//
// Key components:
//
// 1. Provider:
//   - Implements the generation.Provider interface
//   - Builds a single user turn from the prompt and any reference images
//   - Applies a per-call request timeout
//
// 2. Response Processing:
//   - Validates the response against a strict expected shape
//   - Reports safety blocks as content-filter failures
//
// 3. Error Handling:
//   - Translates genai API errors into generation.ProviderError values with
//     an HTTP-equivalent status, so retry and classification work on a
//     single failure shape
//
// Retries are not performed here; the generation package wraps every call.
package gemini
