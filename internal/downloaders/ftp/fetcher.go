package ftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/tanq16/parafetch/internal/utils"
)

const defaultPort = "21"

// Fetcher serves ftp URLs. Every call uses its own control connection since
// a connection carries one transfer at a time.
type Fetcher struct {
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

type location struct {
	addr     string
	path     string
	user     string
	password string
}

func parseFTPURL(link string) (location, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return location{}, fmt.Errorf("invalid FTP URL: %v", err)
	}
	if parsed.Scheme != "ftp" {
		return location{}, fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return location{}, fmt.Errorf("invalid FTP URL format")
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return location{}, fmt.Errorf("FTP URL has no file path")
	}
	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}
	loc := location{
		addr:     net.JoinHostPort(parsed.Hostname(), port),
		path:     parsed.Path,
		user:     "anonymous",
		password: "anonymous",
	}
	if parsed.User != nil {
		loc.user = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			loc.password = password
		}
	}
	return loc, nil
}

func (f *Fetcher) connect(ctx context.Context, loc location) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(loc.addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %v", loc.addr, err)
	}
	if err := conn.Login(loc.user, loc.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("error logging in to %s: %v", loc.addr, err)
	}
	return conn, nil
}

// Probe asks for SIZE. Servers that answer SIZE are taken to support REST.
func (f *Fetcher) Probe(ctx context.Context, link string) (utils.ProbeResult, error) {
	loc, err := parseFTPURL(link)
	if err != nil {
		return utils.ProbeResult{}, err
	}
	conn, err := f.connect(ctx, loc)
	if err != nil {
		return utils.ProbeResult{}, err
	}
	defer conn.Quit()
	size, err := conn.FileSize(loc.path)
	if err != nil {
		log := utils.GetLogger("ftp")
		log.Debug().Err(err).Str("path", loc.path).Msg("SIZE not available")
		return utils.ProbeResult{Size: -1}, nil
	}
	return utils.ProbeResult{Size: size, RangeSupported: true}, nil
}

func (f *Fetcher) Open(ctx context.Context, link string) (io.ReadCloser, error) {
	return f.retrieve(ctx, link, 0, -1)
}

func (f *Fetcher) OpenRange(ctx context.Context, link string, start, end int64) (io.ReadCloser, error) {
	return f.retrieve(ctx, link, start, end-start+1)
}

// retrieve starts RETR at offset. A negative limit reads to the end.
func (f *Fetcher) retrieve(ctx context.Context, link string, offset, limit int64) (io.ReadCloser, error) {
	loc, err := parseFTPURL(link)
	if err != nil {
		return nil, err
	}
	conn, err := f.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	resp, err := conn.RetrFrom(loc.path, uint64(offset))
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("error retrieving %s: %v", loc.path, err)
	}
	r := &transfer{
		conn:   conn,
		resp:   resp,
		reader: resp,
		done:   make(chan struct{}),
	}
	if limit >= 0 {
		r.reader = io.LimitReader(resp, limit)
	}
	go r.watch(ctx)
	return r, nil
}

// transfer owns the control connection of one RETR and aborts it when the
// context ends.
type transfer struct {
	conn      *ftp.ServerConn
	resp      *ftp.Response
	reader    io.Reader
	done      chan struct{}
	closeOnce sync.Once
}

func (t *transfer) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		t.resp.SetDeadline(time.Now())
	case <-t.done:
	}
}

func (t *transfer) Read(p []byte) (int, error) {
	return t.reader.Read(p)
}

// Close ends the transfer. Closing early makes the server report an aborted
// transfer, which is not an error for the caller.
func (t *transfer) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.resp.Close()
		t.conn.Quit()
	})
	return nil
}
