package domain

import "time"

// ChunkStatus represents the processing state of a phone-check chunk.
type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "PENDING"
	ChunkStatusProcessing ChunkStatus = "PROCESSING"
	ChunkStatusCompleted  ChunkStatus = "COMPLETED"
	ChunkStatusError      ChunkStatus = "ERROR"
	ChunkStatusCancelled  ChunkStatus = "CANCELLED"
)

func (s ChunkStatus) String() string { return string(s) }

func (s ChunkStatus) IsTerminal() bool {
	switch s {
	case ChunkStatusCompleted, ChunkStatusError, ChunkStatusCancelled:
		return true
	}
	return false
}

// Chunk is a contiguous sub-slice of a phone-check job, processed under its
// own lookup session.
type Chunk struct {
	Number      int         `json:"chunkNumber"`
	Size        int         `json:"totalNumbers"`
	Processed   int         `json:"processedNumbers"`
	Status      ChunkStatus `json:"status"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// ChunkSizes splits total identifiers into ceil(total/chunkSize) chunk
// sizes, the last one possibly short.
func ChunkSizes(total, chunkSize int) []int {
	if total <= 0 || chunkSize <= 0 {
		return nil
	}
	sizes := make([]int, 0, (total+chunkSize-1)/chunkSize)
	for remaining := total; remaining > 0; remaining -= chunkSize {
		size := chunkSize
		if remaining < chunkSize {
			size = remaining
		}
		sizes = append(sizes, size)
	}
	return sizes
}
