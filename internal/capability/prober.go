// Package capability decides which transcription path a capture session
// should use. The decision is pure: it reads a platform snapshot and returns
// a strategy without touching the network or any device.
package capability

import (
	"strings"

	"voicegate/internal/domain"
)

// Platform is a point-in-time snapshot of what the host supports. It must be
// rebuilt fresh for every capture start; support can change between sessions
// (model files appear, devices change), so nothing here is cached.
type Platform struct {
	// Family is the coarse OS/browser-engine family, lowercase
	// (e.g. "linux", "darwin", "ios", "android").
	Family string

	// UserAgent is the raw platform identification string, when one exists.
	UserAgent string

	// LocalRecognizer reports whether an in-process recognizer is loaded
	// and ready (model present, bindings initialized).
	LocalRecognizer bool
}

// ProbeFunc produces a fresh Platform snapshot. The session calls it at the
// start of every capture.
type ProbeFunc func() Platform

// Defaults applied to the streaming leg of a chosen strategy.
type Defaults struct {
	Vendor         domain.VendorID
	Encoding       string
	SocketEndpoint string
}

// Platform families whose local recognition support is known broken: the
// engine reports the capability but sessions stall or return nothing.
var brokenLocalFamilies = map[string]bool{
	"ios":     true,
	"android": true,
}

// ChooseStrategy picks the transcription path for one session. Policy, first
// match wins:
//
//  1. known-broken family for local recognition -> streaming vendor
//  2. local recognizer present -> local recognizer
//  3. streaming vendor
//
// Deterministic and side-effect free: the same snapshot always yields the
// same strategy.
func ChooseStrategy(p Platform, d Defaults) domain.CaptureStrategy {
	streaming := domain.CaptureStrategy{
		Kind:           domain.StrategyStreamingVendor,
		Vendor:         d.Vendor,
		Encoding:       d.Encoding,
		SocketEndpoint: d.SocketEndpoint,
	}

	if brokenLocalFamilies[normalizeFamily(p)] {
		return streaming
	}
	if p.LocalRecognizer {
		return domain.CaptureStrategy{Kind: domain.StrategyLocalRecognizer}
	}
	return streaming
}

func normalizeFamily(p Platform) string {
	family := strings.ToLower(strings.TrimSpace(p.Family))
	if family != "" {
		return family
	}

	// Fall back to sniffing the user agent when the family is not reported.
	ua := strings.ToLower(p.UserAgent)
	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "ios"
	case strings.Contains(ua, "android"):
		return "android"
	}
	return ""
}
