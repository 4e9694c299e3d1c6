package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/tanq16/parafetch/internal/utils"
)

// MergeChunks concatenates part files into outputPath in ascending range
// order, removing each part once it has been copied. It checks token between
// parts and leaves the remaining parts alone when stopped.
func MergeChunks(token *StopToken, chunks []ChunkRange, outputPath string) (int64, error) {
	log := utils.GetLogger("merge")
	ordered := make([]ChunkRange, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("%w: error creating output file: %v", ErrMerge, err)
	}
	defer out.Close()

	var total int64
	for _, chunk := range ordered {
		if token != nil && token.Stopped() {
			return total, errStopped
		}
		written, err := appendPart(out, chunk)
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrMerge, err)
		}
		total += written
		if err := os.Remove(chunk.Path); err != nil {
			log.Warn().Err(err).Str("part", chunk.Path).Msg("Could not remove part file")
		}
	}
	if err := out.Close(); err != nil {
		return total, fmt.Errorf("%w: error closing output file: %v", ErrMerge, err)
	}
	// only succeeds when no other download is using the temp directory
	os.Remove(utils.TempDir(filepath.Dir(outputPath)))
	log.Debug().Int("parts", len(ordered)).Int64("bytes", total).Str("output", outputPath).Msg("File assembly completed")
	return total, nil
}

func appendPart(out *os.File, chunk ChunkRange) (int64, error) {
	part, err := os.Open(chunk.Path)
	if err != nil {
		return 0, fmt.Errorf("error opening part %d: %v", chunk.Index, err)
	}
	defer part.Close()
	written, err := io.Copy(out, part)
	if err != nil {
		return written, fmt.Errorf("error copying part %d: %v", chunk.Index, err)
	}
	if written != chunk.Size() {
		return written, fmt.Errorf("part %d has %d bytes, expected %d", chunk.Index, written, chunk.Size())
	}
	return written, nil
}
