package utils

import (
	"context"
	"io"
)

// ProbeResult is what a metadata-only request learns about a remote resource.
// Size is -1 when the server does not report a length.
type ProbeResult struct {
	Size           int64
	RangeSupported bool
}

// Fetcher is implemented once per URL scheme family (http, ftp, s3).
type Fetcher interface {
	Probe(ctx context.Context, link string) (ProbeResult, error)
	Open(ctx context.Context, link string) (io.ReadCloser, error)
	// OpenRange returns the inclusive byte range [start, end].
	OpenRange(ctx context.Context, link string, start, end int64) (io.ReadCloser, error)
}

// CollisionPolicy decides what happens when the destination file already exists.
type CollisionPolicy string

const (
	CollisionOverwrite CollisionPolicy = "overwrite"
	CollisionRename    CollisionPolicy = "rename"
)
