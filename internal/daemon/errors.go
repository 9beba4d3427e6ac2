package daemon

import (
	"errors"

	"github.com/rbright/voxd/internal/pipeline"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

// wireError classifies err into a machine-readable protocol error.
func wireError(err error) *protocol.Error {
	var (
		pe    *protocol.Error
		busy  *session.BusyError
		devEr *pipeline.DeviceError
	)
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.As(err, &busy):
		return protocol.Errorf(protocol.CodeBusy, "%s", busy.Error())
	case errors.Is(err, session.ErrMicrophoneMuted):
		return protocol.Errorf(protocol.CodeMicMuted, "%s", err.Error())
	case errors.As(err, &devEr):
		return protocol.Errorf(protocol.CodeDeviceError, "%s", err.Error())
	case errors.Is(err, router.ErrConfiguration):
		return protocol.Errorf(protocol.CodeConfigurationError, "%s", err.Error())
	case errors.Is(err, pipeline.ErrEmptyText):
		return protocol.Errorf(protocol.CodeInvalidParams, "%s", err.Error())
	default:
		return protocol.Errorf(protocol.CodeInternal, "%s", err.Error())
	}
}
