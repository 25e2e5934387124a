package audio

import (
	"github.com/gen2brain/malgo"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// CaptureDevice describes one available input device.
type CaptureDevice struct {
	Name      string
	IsDefault bool
}

// ListCaptureDevices enumerates the platform's capture devices using a
// short-lived audio context.
func ListCaptureDevices() ([]CaptureDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceInit, err, "initializing audio context")
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceInit, err, "enumerating capture devices")
	}

	devices := make([]CaptureDevice, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, CaptureDevice{
			Name:      info.Name(),
			IsDefault: info.IsDefault > 0,
		})
	}
	return devices, nil
}
