package cdpilot

import (
	"context"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/emulation"
)

// Device is a preset viewport/UA/touch profile, for use with
// EmulateViewport.
type Device int

const (
	DeviceIPhoneX Device = iota
	DeviceIPadPro
	DevicePixel5
	DeviceGalaxyS9
	DeviceDesktop1080p
)

type deviceInfo struct {
	name      string
	userAgent string
	width     int64
	height    int64
	scale     float64
	landscape bool
	mobile    bool
	touch     bool
}

var devices = map[Device]deviceInfo{
	DeviceIPhoneX: {
		name: "iPhone X", width: 375, height: 812, scale: 3, mobile: true, touch: true,
		userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
	},
	DeviceIPadPro: {
		name: "iPad Pro", width: 1024, height: 1366, scale: 2, mobile: true, touch: true,
		userAgent: "Mozilla/5.0 (iPad; CPU OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
	},
	DevicePixel5: {
		name: "Pixel 5", width: 393, height: 851, scale: 2.75, mobile: true, touch: true,
		userAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.91 Mobile Safari/537.36",
	},
	DeviceGalaxyS9: {
		name: "Galaxy S9", width: 360, height: 740, scale: 3, mobile: true, touch: true,
		userAgent: "Mozilla/5.0 (Linux; Android 8.0.0; SM-G960F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/62.0.3202.84 Mobile Safari/537.36",
	},
	DeviceDesktop1080p: {
		name: "Desktop 1080p", width: 1920, height: 1080, scale: 1,
	},
}

func (d Device) String() string { return devices[d].name }

// EmulateViewport changes the Context's page to report the given Device's
// viewport, device scale factor, mobile/touch flags and orientation, and
// sets its User-Agent to match.
func EmulateViewport(d Device) Action {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		info := devices[d]
		h := c.Browser.Handler()

		orientation := &emulation.ScreenOrientation{Type: emulation.OrientationTypePortraitPrimary, Angle: 0}
		if info.landscape {
			orientation = &emulation.ScreenOrientation{Type: emulation.OrientationTypeLandscapePrimary, Angle: 90}
		}
		metrics := &emulation.SetDeviceMetricsOverrideParams{
			Width:             info.width,
			Height:            info.height,
			DeviceScaleFactor: info.scale,
			Mobile:            info.mobile,
			ScreenOrientation: orientation,
		}
		if _, err := h.Execute(ctx, c.SessionID, cdproto.CommandEmulationSetDeviceMetricsOverride, metrics); err != nil {
			return err
		}
		if _, err := h.Execute(ctx, c.SessionID, cdproto.CommandEmulationSetTouchEmulationEnabled, &emulation.SetTouchEmulationEnabledParams{Enabled: info.touch}); err != nil {
			return err
		}
		if info.userAgent != "" {
			if _, err := h.Execute(ctx, c.SessionID, cdproto.CommandEmulationSetUserAgentOverride, &emulation.SetUserAgentOverrideParams{UserAgent: info.userAgent}); err != nil {
				return err
			}
		}
		return nil
	})
}
