// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// HNSW index parameters for pixel descriptors
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// DefaultHNSWCandidates is how many approximate neighbors are re-checked with exact distance.
	DefaultHNSWCandidates = 8
)

// Access session constants
const (
	// EventChannelBuffer is the buffer size for session event listeners
	EventChannelBuffer = 100

	// DefaultPreviewQuality is the JPEG quality of annotated preview frames
	DefaultPreviewQuality = 75

	// UnknownFaceLabel captions faces that match nobody
	UnknownFaceLabel = "INCONNU"
)

// File upload constants
const (
	// MaxUploadSize is the maximum enrollment photo size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// ImageFilePerm is the permission for stored student photos
	ImageFilePerm = 0o644
)
