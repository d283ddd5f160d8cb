// Package device generates the per-account device identity sent with every remote call.
package device

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// Identity is the device fingerprint bound to one access token.
type Identity struct {
	DeviceID   string `json:"device_id"`
	Model      string `json:"model"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
	Locale     string `json:"locale"`
}

var models = []string{
	"samsung SM-S918B",
	"samsung SM-A546E",
	"Google Pixel 7",
	"Google Pixel 8 Pro",
	"Xiaomi 2201117TG",
	"OnePlus CPH2449",
	"motorola moto g54 5G",
}

var osVersions = []string{"12", "13", "14"}

// AppVersion is the client version reported by generated identities.
const AppVersion = "6.4.2"

// Generate returns a fresh random identity.
func Generate(locale string) Identity {
	if locale == "" {
		locale = "en"
	}
	return Identity{
		DeviceID:   uuid.NewString(),
		Model:      models[rand.IntN(len(models))],
		OSVersion:  osVersions[rand.IntN(len(osVersions))],
		AppVersion: AppVersion,
		Locale:     locale,
	}
}

// Valid reports whether the identity has the fields needed for a header.
func (i Identity) Valid() bool {
	if _, err := uuid.Parse(i.DeviceID); err != nil {
		return false
	}
	return i.Model != "" && i.AppVersion != ""
}

// HeaderValue renders the identity as the X-Device-Info header value.
func (i Identity) HeaderValue() string {
	return fmt.Sprintf("BRAND/%s, OS/Android %s, DEVICE-ID/%s, APP/%s, LOCALE/%s",
		strings.ReplaceAll(i.Model, ",", " "), i.OSVersion, i.DeviceID, i.AppVersion, i.Locale)
}
