package ble

import "strings"

// Profile labels surfaced to the UI.
const (
	ProfileGeneric     = "Generic BLE"
	ProfileHIDDevice   = "HID Device"
	ProfileHIDKeyboard = "HID Keyboard"
	ProfileAudioLike   = "Audio-like BLE"
)

// DeviceInfo is one classified scan result.
type DeviceInfo struct {
	Name        string
	Address     string
	RSSI        int
	HID         bool
	Keyboard    bool
	LikelyAudio bool
	Profile     string
}

var audioNameKeywords = []string{"ear", "bud", "headset", "speaker", "audio", "mic"}

// likelyAudioName guesses audio peripherals from the advertised name. BLE
// audio devices rarely advertise a usable service before pairing, so a name
// heuristic is the best signal available during a scan.
func likelyAudioName(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, kw := range audioNameKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func advertisesService(adv Advertisement, uuid string) bool {
	for _, s := range adv.ServiceUUIDs {
		if strings.EqualFold(s, uuid) {
			return true
		}
	}
	return false
}

// classify builds a DeviceInfo from one advertisement. Keyboard requires
// either the keyboard appearance value or the HID service combined with a
// "kbd"/"keyboard" name.
func classify(adv Advertisement) DeviceInfo {
	name := adv.Name
	if name == "" {
		name = adv.Address
	}

	hasHIDService := advertisesService(adv, HIDServiceUUID)

	appearsKeyboard := adv.Appearance == AppearanceKeyboard
	appearsHID := adv.Appearance >= AppearanceGenericHID &&
		adv.Appearance < AppearanceGenericHID+16

	lower := strings.ToLower(name)
	nameKeyboard := strings.Contains(lower, "kbd") || strings.Contains(lower, "keyboard")

	keyboard := appearsKeyboard || (hasHIDService && nameKeyboard)
	hidDev := hasHIDService || appearsHID || keyboard
	audio := likelyAudioName(name)

	return DeviceInfo{
		Name:        name,
		Address:     adv.Address,
		RSSI:        adv.RSSI,
		HID:         hidDev,
		Keyboard:    keyboard,
		LikelyAudio: audio,
		Profile:     profileLabel(hidDev, keyboard, audio),
	}
}

func profileLabel(hid, keyboard, likelyAudio bool) string {
	switch {
	case keyboard:
		return ProfileHIDKeyboard
	case hid:
		return ProfileHIDDevice
	case likelyAudio:
		return ProfileAudioLike
	default:
		return ProfileGeneric
	}
}
