package ndi

import "github.com/zsiec/ndikit/pkg/ndi/native"

// PTZIsSupported reports whether the source accepts PTZ commands.
func (r *Receiver) PTZIsSupported() bool {
	ok := false
	_ = r.use(func(inst native.RecvInstance) {
		ok = r.lib.RecvPTZIsSupported(inst)
	})
	return ok
}

func (r *Receiver) ptz(name string, cmd native.PTZCommand) error {
	ok := false
	if err := r.use(func(inst native.RecvInstance) {
		ok = r.lib.RecvPTZ(inst, cmd)
	}); err != nil {
		return err
	}
	if !ok {
		return newError(ErrorTypePTZCommandFailed, "%s failed on %s", name, r.source.Name)
	}
	return nil
}

// PTZRecallPreset moves to a stored preset at speed 0..1.
func (r *Receiver) PTZRecallPreset(preset int, speed float32) error {
	return r.ptz("recall preset", native.PTZCommand{Op: native.PTZRecallPreset, Preset: int32(preset), Args: [3]float32{speed}})
}

// PTZZoom sets the zoom level, 0 (wide) to 1 (tele).
func (r *Receiver) PTZZoom(zoom float32) error {
	return r.ptz("zoom", native.PTZCommand{Op: native.PTZZoom, Args: [3]float32{zoom}})
}

// PTZZoomSpeed zooms at -1..1; 0 stops.
func (r *Receiver) PTZZoomSpeed(speed float32) error {
	return r.ptz("zoom speed", native.PTZCommand{Op: native.PTZZoomSpeed, Args: [3]float32{speed}})
}

// PTZPanTilt moves to an absolute position, each axis -1..1.
func (r *Receiver) PTZPanTilt(pan, tilt float32) error {
	return r.ptz("pan/tilt", native.PTZCommand{Op: native.PTZPanTilt, Args: [3]float32{pan, tilt}})
}

func (r *Receiver) PTZPanTiltSpeed(panSpeed, tiltSpeed float32) error {
	return r.ptz("pan/tilt speed", native.PTZCommand{Op: native.PTZPanTiltSpeed, Args: [3]float32{panSpeed, tiltSpeed}})
}

// PTZStorePreset stores the current position as preset 0..99.
func (r *Receiver) PTZStorePreset(preset int) error {
	return r.ptz("store preset", native.PTZCommand{Op: native.PTZStorePreset, Preset: int32(preset)})
}

func (r *Receiver) PTZAutoFocus() error {
	return r.ptz("auto focus", native.PTZCommand{Op: native.PTZAutoFocus})
}

func (r *Receiver) PTZFocus(focus float32) error {
	return r.ptz("focus", native.PTZCommand{Op: native.PTZFocus, Args: [3]float32{focus}})
}

func (r *Receiver) PTZFocusSpeed(speed float32) error {
	return r.ptz("focus speed", native.PTZCommand{Op: native.PTZFocusSpeed, Args: [3]float32{speed}})
}

func (r *Receiver) PTZWhiteBalanceAuto() error {
	return r.ptz("white balance auto", native.PTZCommand{Op: native.PTZWhiteBalanceAuto})
}

func (r *Receiver) PTZWhiteBalanceIndoor() error {
	return r.ptz("white balance indoor", native.PTZCommand{Op: native.PTZWhiteBalanceIndoor})
}

func (r *Receiver) PTZWhiteBalanceOutdoor() error {
	return r.ptz("white balance outdoor", native.PTZCommand{Op: native.PTZWhiteBalanceOutdoor})
}

func (r *Receiver) PTZWhiteBalanceOneshot() error {
	return r.ptz("white balance oneshot", native.PTZCommand{Op: native.PTZWhiteBalanceOneshot})
}

// PTZWhiteBalanceManual sets red and blue gains, 0..1.
func (r *Receiver) PTZWhiteBalanceManual(red, blue float32) error {
	return r.ptz("white balance manual", native.PTZCommand{Op: native.PTZWhiteBalanceManual, Args: [3]float32{red, blue}})
}

func (r *Receiver) PTZExposureAuto() error {
	return r.ptz("exposure auto", native.PTZCommand{Op: native.PTZExposureAuto})
}

func (r *Receiver) PTZExposureManual(level float32) error {
	return r.ptz("exposure manual", native.PTZCommand{Op: native.PTZExposureManual, Args: [3]float32{level}})
}

// PTZExposureManualV2 sets iris, gain and shutter speed, each 0..1.
func (r *Receiver) PTZExposureManualV2(iris, gain, shutterSpeed float32) error {
	return r.ptz("exposure manual", native.PTZCommand{Op: native.PTZExposureManualV2, Args: [3]float32{iris, gain, shutterSpeed}})
}
