// Package domain defines the core entities of the image studio: generation
// requests, generation modes, encoded image payloads and the validation errors
// raised when a request cannot be accepted. It has no knowledge of HTTP,
// storage or the external image provider.
package domain
