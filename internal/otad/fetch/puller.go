// Package fetch installs firmware images pulled from object storage.
package fetch

import (
	"context"
	"errors"
	"fmt"

	units "github.com/docker/go-units"
	"go.uber.org/multierr"

	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/pkg/log"
)

// ErrEmptyKey is returned when Pull is called without an object key.
var ErrEmptyKey = errors.New("fetch: object key is empty")

// Puller streams objects from an ObjectSource through the update engine.
type Puller struct {
	source    ObjectSource
	uploader  ota.Uploader
	chunkSize int
}

func NewPuller(source ObjectSource, uploader ota.Uploader, chunkSize int) *Puller {
	return &Puller{source: source, uploader: uploader, chunkSize: chunkSize}
}

// Pull installs the object stored under key. It returns once the session
// committed or aborted.
func (p *Puller) Pull(ctx context.Context, key string) (out ota.Outcome, err error) {
	if key == "" {
		return ota.Outcome{}, ErrEmptyKey
	}

	body, size, err := p.source.Open(ctx, key)
	if err != nil {
		return ota.Outcome{}, err
	}
	defer func() {
		err = multierr.Append(err, body.Close())
	}()

	log.Info("Pulling firmware image", "key", key, "size", units.BytesSize(float64(size)))

	out, err = ota.Stream(ctx, p.uploader, body, p.chunkSize,
		ota.WithSource("s3"),
		ota.WithExpectedSize(size))
	if err != nil {
		return out, fmt.Errorf("install %s: %w", key, err)
	}
	return out, nil
}

// Check verifies that the object source is reachable.
func (p *Puller) Check(ctx context.Context) error {
	return p.source.Check(ctx)
}
