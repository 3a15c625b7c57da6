package device

import "strings"

// MailBundleID is the bundle id of the stock Mail app.
const MailBundleID = "com.apple.mobilemail"

var appBundles = map[string]string{
	"mail":       MailBundleID,
	"safari":     "com.apple.mobilesafari",
	"settings":   "com.apple.Preferences",
	"messages":   "com.apple.MobileSMS",
	"notes":      "com.apple.mobilenotes",
	"calendar":   "com.apple.mobilecal",
	"photos":     "com.apple.mobileslideshow",
	"camera":     "com.apple.camera",
	"maps":       "com.apple.Maps",
	"reminders":  "com.apple.reminders",
	"contacts":   "com.apple.MobileAddressBook",
	"app store":  "com.apple.AppStore",
	"files":      "com.apple.DocumentsApp",
	"phone":      "com.apple.mobilephone",
	"weather":    "com.apple.weather",
	"clock":      "com.apple.mobiletimer",
	"calculator": "com.apple.calculator",
}

// BundleID resolves an app name to its bundle id. Strings that already look
// like a bundle id, or unknown names, are returned unchanged.
func BundleID(app string) string {
	name := strings.ToLower(strings.TrimSpace(app))
	if id, ok := appBundles[name]; ok {
		return id
	}
	return strings.TrimSpace(app)
}

// IsApp reports whether the foreground bundle belongs to the wanted app.
// Matching is lenient: the bundle prefix, or the app's short name anywhere in the id.
func IsApp(foreground, bundleID string) bool {
	fg := strings.ToLower(foreground)
	want := strings.ToLower(bundleID)
	if fg == "" || want == "" {
		return false
	}
	if strings.HasPrefix(fg, want) {
		return true
	}
	short := want
	if i := strings.LastIndexByte(want, '.'); i >= 0 {
		short = want[i+1:]
	}
	short = strings.TrimPrefix(short, "mobile")
	return short != "" && strings.Contains(fg, short)
}
