//go:build !cgo || noaudio

package pionmedia

import (
	"context"
	"fmt"

	"github.com/pion/mediasession"
)

// MalgoOutputs is unavailable in this build.
type MalgoOutputs struct{}

// ListOutputs implements OutputLister.
func (MalgoOutputs) ListOutputs(ctx context.Context) ([]mediasession.Device, error) {
	return nil, fmt.Errorf("audio outputs: %w", mediasession.ErrUnsupported)
}
