package engine

import "github.com/tanq16/parafetch/internal/utils"

// ChunkRange is an inclusive byte range fetched by one worker into Path.
type ChunkRange struct {
	Index int
	Start int64
	End   int64
	Path  string
}

func (c ChunkRange) Size() int64 {
	return c.End - c.Start + 1
}

// PlanChunks splits [0, size-1] into n contiguous ranges. The last range
// absorbs the remainder. n is lowered when size is smaller than n.
func PlanChunks(size int64, n int, outputPath string) []ChunkRange {
	if size <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if int64(n) > size {
		n = int(size)
	}
	chunkSize := size / int64(n)
	chunks := make([]ChunkRange, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == n-1 {
			end = size - 1
		}
		chunks = append(chunks, ChunkRange{
			Index: i,
			Start: start,
			End:   end,
			Path:  utils.PartFilePath(outputPath, i),
		})
	}
	return chunks
}
