package authcore

import "strings"

// defaultDeviceDetector is the built-in User-Agent sniffer. It covers the
// handful of families worth distinguishing in a session list; callers who
// need real UA parsing inject their own DeviceDetector.
type defaultDeviceDetector struct{}

func (defaultDeviceDetector) Parse(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{Device: "unknown", Browser: "unknown"}
	}

	ua := strings.ToLower(userAgent)

	device := "desktop"
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		device = "mobile"
	case strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider"):
		device = "bot"
	}

	// Order matters: Edge and Opera embed "chrome", Chrome embeds "safari".
	browser := "unknown"
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		browser = "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "opera"
	case strings.Contains(ua, "chrome"):
		browser = "chrome"
	case strings.Contains(ua, "firefox"):
		browser = "firefox"
	case strings.Contains(ua, "safari"):
		browser = "safari"
	case strings.Contains(ua, "curl") || strings.Contains(ua, "wget"):
		browser = "cli"
	}

	return DeviceInfo{Device: device, Browser: browser}
}
