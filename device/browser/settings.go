package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys of the flat settings map passed to the gateway plugin.
const (
	KeyBrowser  = "browser"
	KeyHeadless = "headless"
	KeyEndpoint = "endpoint"
	KeyWidth    = "width"
	KeyHeight   = "height"
	KeyScale    = "scale"
	// keyAppPrefix prefixes one entry per bundle id in Apps.
	keyAppPrefix = "app."
)

// Map flattens the settings into the string map plugins are configured with.
func (s Settings) Map() map[string]string {
	m := map[string]string{
		KeyBrowser:  s.BrowserType,
		KeyHeadless: strconv.FormatBool(s.Headless),
	}
	if s.Endpoint != "" {
		m[KeyEndpoint] = s.Endpoint
	}
	if s.Viewport.Width > 0 && s.Viewport.Height > 0 {
		m[KeyWidth] = strconv.Itoa(s.Viewport.Width)
		m[KeyHeight] = strconv.Itoa(s.Viewport.Height)
	}
	if s.Scale > 0 {
		m[KeyScale] = strconv.FormatFloat(s.Scale, 'f', -1, 64)
	}
	for bundle, url := range s.Apps {
		m[keyAppPrefix+bundle] = url
	}
	return m
}

// ParseSettings is the inverse of Map. Unknown keys are ignored so that a
// plugin can share its map with other settings.
func ParseSettings(m map[string]string) (Settings, error) {
	s := Settings{
		BrowserType: m[KeyBrowser],
		Headless:    true,
		Endpoint:    m[KeyEndpoint],
	}
	if v, ok := m[KeyHeadless]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", KeyHeadless, err)
		}
		s.Headless = b
	}
	var err error
	if s.Viewport.Width, err = intSetting(m, KeyWidth); err != nil {
		return Settings{}, err
	}
	if s.Viewport.Height, err = intSetting(m, KeyHeight); err != nil {
		return Settings{}, err
	}
	if v := m[KeyScale]; v != "" {
		if s.Scale, err = strconv.ParseFloat(v, 64); err != nil {
			return Settings{}, fmt.Errorf("%s: %w", KeyScale, err)
		}
	}

	for k, v := range m {
		bundle, ok := strings.CutPrefix(k, keyAppPrefix)
		if !ok || bundle == "" {
			continue
		}
		if s.Apps == nil {
			s.Apps = make(map[string]string)
		}
		s.Apps[bundle] = v
	}
	return s, nil
}

func intSetting(m map[string]string, key string) (int, error) {
	v := m[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return n, nil
}
