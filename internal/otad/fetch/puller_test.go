package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/internal/otad/slot"
)

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

type fakeSource struct {
	objects map[string][]byte
	opened  []*trackedBody
}

func (s *fakeSource) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, 0, errors.New("no such key")
	}
	b := &trackedBody{Reader: bytes.NewReader(data)}
	s.opened = append(s.opened, b)
	return b, int64(len(data)), nil
}

func (s *fakeSource) Check(context.Context) error { return nil }

type noReboot struct{}

func (noReboot) Reboot(context.Context) error { return nil }

func newTestPuller(t *testing.T, objects map[string][]byte) (*Puller, *fakeSource, *slot.Manager) {
	t.Helper()
	slots, err := slot.NewManager(slot.NewMemMedium(), slot.NewMemBootStore(),
		[]slot.Spec{{ID: "a", Capacity: 256}, {ID: "b", Capacity: 256}})
	require.NoError(t, err)

	src := &fakeSource{objects: objects}
	return NewPuller(src, ota.NewEngine(slots, noReboot{}), 32), src, slots
}

func TestPullCommits(t *testing.T) {
	p, src, slots := newTestPuller(t, map[string][]byte{"fw/v2.bin": bytes.Repeat([]byte{7}, 200)})

	out, err := p.Pull(context.Background(), "fw/v2.bin")
	require.NoError(t, err)
	assert.Equal(t, ota.ResultCommitted, out.Result)
	assert.Equal(t, int64(200), out.Written)

	boot, err := slots.BootTarget()
	require.NoError(t, err)
	assert.Equal(t, slot.ID("b"), boot.ID)

	require.Len(t, src.opened, 1)
	assert.True(t, src.opened[0].closed)
}

func TestPullTooLargeIsRejectedUpFront(t *testing.T) {
	p, src, slots := newTestPuller(t, map[string][]byte{"big.bin": make([]byte, 300)})

	_, err := p.Pull(context.Background(), "big.bin")
	assert.ErrorIs(t, err, slot.ErrCapacityExceeded)
	assert.True(t, src.opened[0].closed)

	boot, err := slots.BootTarget()
	require.NoError(t, err)
	assert.Equal(t, slot.ID("a"), boot.ID)
}

func TestPullMissingObject(t *testing.T) {
	p, _, _ := newTestPuller(t, nil)

	_, err := p.Pull(context.Background(), "missing.bin")
	assert.Error(t, err)

	_, err = p.Pull(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
