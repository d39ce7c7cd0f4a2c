package artifacts

import (
	"context"

	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/obs"
)

// Mirror writes to Primary and then copies to Secondary. The returned
// location is always the primary one; a failed secondary write is reported
// as a screenshot_write_error after the primary write already succeeded.
type Mirror struct {
	Primary   Store
	Secondary Store
}

// Put implements Store.
func (m *Mirror) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	loc, err := m.Primary.Put(ctx, key, data, contentType)
	if err != nil {
		return "", err
	}
	if m.Secondary == nil {
		return loc, nil
	}
	remote, err := m.Secondary.Put(ctx, key, data, contentType)
	if err != nil {
		return loc, errs.Wrap(errs.ScreenshotWrite, "mirror upload failed", err)
	}
	obs.From(ctx).Debug("artifact_mirrored", "key", key, "local", loc, "remote", remote, "bytes", len(data))
	return loc, nil
}
