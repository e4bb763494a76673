// Package hid decodes HID boot-keyboard input reports into text. A boot
// report is 8 bytes: one modifier byte, one reserved byte, and up to six
// simultaneously pressed key codes (rollover). The decoder is edge-triggered:
// a key emits its character only on the transition into the pressed state.
package hid

const (
	// reportLen is the boot-keyboard report size. Some stacks prepend a
	// report-id byte; callers pass the raw notification and HandleReport
	// uses the trailing 8 bytes.
	reportLen = 8

	// shiftMask covers left shift (0x02) and right shift (0x20) in the
	// modifier byte.
	shiftMask = 0x22

	// keyBackspace is an edit action, not a printable character.
	keyBackspace = 42
)

var digitRow = [10]struct{ plain, shifted byte }{
	{'1', '!'}, {'2', '@'}, {'3', '#'}, {'4', '$'}, {'5', '%'},
	{'6', '^'}, {'7', '&'}, {'8', '*'}, {'9', '('}, {'0', ')'},
}

// punctuation maps key codes 40 and 43-56. Code 41 (escape) and 42
// (backspace) are intentionally absent.
var punctuation = map[byte]struct{ plain, shifted byte }{
	40: {'\n', '\n'},
	43: {'\t', '\t'},
	44: {' ', ' '},
	45: {'-', '_'},
	46: {'=', '+'},
	47: {'[', '{'},
	48: {']', '}'},
	49: {'\\', '|'},
	51: {';', ':'},
	52: {'\'', '"'},
	53: {'`', '~'},
	54: {',', '<'},
	55: {'.', '>'},
	56: {'/', '?'},
}

// Translate maps a boot-keyboard key code to its ASCII character. The second
// return is false for codes with no printable mapping (modifiers, function
// keys, backspace).
func Translate(code byte, shift bool) (byte, bool) {
	switch {
	case code >= 4 && code <= 29:
		c := 'a' + (code - 4)
		if shift {
			c -= 'a' - 'A'
		}
		return c, true
	case code >= 30 && code <= 39:
		row := digitRow[code-30]
		if shift {
			return row.shifted, true
		}
		return row.plain, true
	}
	if p, ok := punctuation[code]; ok {
		if shift {
			return p.shifted, true
		}
		return p.plain, true
	}
	return 0, false
}
