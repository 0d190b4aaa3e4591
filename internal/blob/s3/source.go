package s3blob

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Source serves bundle archives and symbol catalogs from a bucket, as an
// alternative to plain HTTP distribution. Objects live under objectPrefix
// with the same file names the HTTP source uses.
type Source struct {
	c            *Client
	objectPrefix string
	downloader   *manager.Downloader
}

// NewSource creates a Source. Objects are fetched with the transfer manager
// so large archives are downloaded in concurrent parts.
func NewSource(c *Client, objectPrefix string) *Source {
	return &Source{
		c:            c,
		objectPrefix: objectPrefix,
		downloader: manager.NewDownloader(c.s3, func(d *manager.Downloader) {
			d.Concurrency = 4
		}),
	}
}

// Open downloads the object called name in full and returns it. Failures
// are reported as *domain.DownloadError.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p := s.objectPrefix + "/" + name
	if s.objectPrefix == "" {
		p = name
	}

	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.c.bucket),
		Key:    aws.String(s.c.Key(p)),
	})
	if err != nil {
		dl := &domain.DownloadError{URL: s.c.URI(p), Err: err}
		if isNotFound(err) {
			dl.StatusCode = http.StatusNotFound
		}
		return nil, dl
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
