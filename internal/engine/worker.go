package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tanq16/parafetch/internal/utils"
)

// fetchChunk downloads one range into its part file. It returns nil as soon as
// the stop token fires; what was written so far stays on disk.
func (a *attempt) fetchChunk(ctx context.Context, fetcher utils.Fetcher, chunk ChunkRange, progressCh chan<- int64) error {
	log := a.log.With().Int("chunkId", chunk.Index).Logger()
	file, err := os.OpenFile(chunk.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("chunk %d: error opening part file: %v", chunk.Index, err)
	}
	defer file.Close()

	log.Debug().Int64("start", chunk.Start).Int64("end", chunk.End).Msg("Sending range request")
	body, err := fetcher.OpenRange(ctx, a.job.URL, chunk.Start, chunk.End)
	if err != nil {
		if a.token.Stopped() {
			return nil
		}
		return fmt.Errorf("chunk %d: %v", chunk.Index, err)
	}
	defer body.Close()

	expected := chunk.Size()
	buffer := make([]byte, a.engine.opts.BufferSize)
	var written int64
	for {
		if a.token.Stopped() {
			return nil
		}
		n, readErr := body.Read(buffer)
		if n > 0 {
			if written+int64(n) > expected {
				return fmt.Errorf("chunk %d: server sent more than %d bytes", chunk.Index, expected)
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("chunk %d: error writing part file: %v", chunk.Index, err)
			}
			written += int64(n)
			progressCh <- int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if a.token.Stopped() {
				return nil
			}
			return fmt.Errorf("chunk %d: %v", chunk.Index, readErr)
		}
	}
	if written != expected {
		log.Error().Int64("expected", expected).Int64("received", written).Msg("Size mismatch on chunk download")
		return fmt.Errorf("chunk %d: size mismatch: expected %d bytes, got %d", chunk.Index, expected, written)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("chunk %d: error closing part file: %v", chunk.Index, err)
	}
	log.Debug().Int64("bytes", written).Msg("Chunk download completed")
	return nil
}
