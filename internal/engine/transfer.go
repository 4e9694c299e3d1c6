package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tanq16/parafetch/internal/utils"
)

// runSingle streams the whole resource straight into the destination file.
func (a *attempt) runSingle(fetcher utils.Fetcher, outputPath string) error {
	body, err := fetcher.Open(a.token.Context(), a.job.URL)
	if err != nil {
		return a.transferError(err)
	}
	defer body.Close()

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: error creating output file: %v", ErrTransfer, err)
	}
	defer file.Close()

	interval := a.engine.opts.ProgressInterval
	buffer := make([]byte, a.engine.opts.BufferSize)
	lastEmit := time.Now()
	var written int64
	for {
		if a.token.Stopped() {
			return errStopped
		}
		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, err := file.Write(buffer[:n]); err != nil {
				return a.transferError(err)
			}
			written += int64(n)
			a.add(int64(n))
			if time.Since(lastEmit) >= interval {
				a.progress(StatusDownloading)
				lastEmit = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return a.transferError(readErr)
		}
	}
	if a.total >= 0 && written != a.total {
		return fmt.Errorf("%w: expected %d bytes, received %d", ErrTransfer, a.total, written)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: error closing output file: %v", ErrTransfer, err)
	}
	return nil
}

// runMulti fetches every chunk in parallel, then merges the parts. The first
// worker error cancels the others.
func (a *attempt) runMulti(fetcher utils.Fetcher, outputPath string) error {
	opts := a.engine.opts
	chunks := PlanChunks(a.total, opts.Connections, outputPath)
	if err := os.MkdirAll(utils.TempDir(filepath.Dir(outputPath)), 0755); err != nil {
		return fmt.Errorf("%w: error creating temp directory: %v", ErrTransfer, err)
	}
	a.log.Debug().Int("chunks", len(chunks)).Int64("size", a.total).Msg("Starting chunked download")

	ctx, cancel := context.WithCancel(a.token.Context())
	defer cancel()

	progressCh := make(chan int64, 100)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		a.aggregate(progressCh, opts.ProgressInterval)
	}()

	errCh := make(chan error, len(chunks))
	var wg sync.WaitGroup
	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk ChunkRange) {
			defer wg.Done()
			if err := a.fetchChunk(ctx, fetcher, chunk, progressCh); err != nil {
				errCh <- err
				cancel()
			}
		}(chunk)
	}
	wg.Wait()
	close(progressCh)
	<-aggregated
	close(errCh)

	if a.token.Stopped() {
		return errStopped
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	if err := a.job.advance(a.token, StateMerging); err != nil {
		return err
	}
	a.progress(StatusMerging)
	if _, err := MergeChunks(a.token, chunks, outputPath); err != nil {
		return err
	}
	return nil
}
