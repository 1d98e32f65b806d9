// Package filecache stores generated images in a directory that is also served
// as static content, and reads that directory back as a paginated gallery.
//
// Each image is written as "<unix-ms>-<id>.<ext>" next to a "<name>.json"
// sidecar holding the metadata of the generation that produced it. The
// directory is the only source of truth: there is no index to keep in sync.
package filecache
