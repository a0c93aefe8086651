// Package kb maps runes and named keys to the DOM key/code data CDP's
// Input.dispatchKeyEvent needs, and encodes a rune into the keyDown/char/
// keyUp event sequence a real keystroke would produce.
//
// This is a hand-maintained subset of the table Chromium's own
// USKeyboardLayout generates: printable ASCII plus the control keys
// cdpilot's primitives (PressKey, TypeStr) need. It is not regenerated
// from Chromium source.
package kb

import (
	"runtime"
	"unicode"

	"github.com/chromedp/cdproto/input"
)

// Key holds one rune's DOM key/code data, mirroring the fields Chromium's
// keyboard-layout tables carry.
type Key struct {
	Code       string
	Key        string
	Text       string
	Unmodified string
	Native     int64
	Windows    int64
	Shift      bool
	Print      bool
}

// Named holds named (non-printable) keys addressable by name, e.g. for
// PressKey("Enter") / PressKey("Escape").
var Named = map[string]*Key{
	"Enter":      {Code: "Enter", Key: "Enter", Text: "\r", Unmodified: "\r", Native: 0x0d, Windows: 0x0d, Print: true},
	"Tab":        {Code: "Tab", Key: "Tab", Native: 0x09, Windows: 0x09},
	"Backspace":  {Code: "Backspace", Key: "Backspace", Native: 0x08, Windows: 0x08},
	"Escape":     {Code: "Escape", Key: "Escape", Native: 0x1b, Windows: 0x1b},
	"Delete":     {Code: "Delete", Key: "Delete", Native: 0x2e, Windows: 0x2e},
	"Space":      {Code: "Space", Key: " ", Text: " ", Unmodified: " ", Native: 0x20, Windows: 0x20, Print: true},
	"ArrowUp":    {Code: "ArrowUp", Key: "ArrowUp", Native: 0x26, Windows: 0x26},
	"ArrowDown":  {Code: "ArrowDown", Key: "ArrowDown", Native: 0x28, Windows: 0x28},
	"ArrowLeft":  {Code: "ArrowLeft", Key: "ArrowLeft", Native: 0x25, Windows: 0x25},
	"ArrowRight": {Code: "ArrowRight", Key: "ArrowRight", Native: 0x27, Windows: 0x27},
	"Home":       {Code: "Home", Key: "Home", Native: 0x24, Windows: 0x24},
	"End":        {Code: "End", Key: "End", Native: 0x23, Windows: 0x23},
	"PageUp":     {Code: "PageUp", Key: "PageUp", Native: 0x21, Windows: 0x21},
	"PageDown":   {Code: "PageDown", Key: "PageDown", Native: 0x22, Windows: 0x22},
}

// Keys maps a printable rune to its DOM key data. Generated here by hand
// for the ASCII range; anything else falls back to EncodeUnidentified.
var Keys = func() map[rune]*Key {
	m := map[rune]*Key{
		'\r': Named["Enter"],
		'\n': Named["Enter"],
		'\t': Named["Tab"],
		'\b': Named["Backspace"],
		' ':  Named["Space"],
	}
	for r := 'a'; r <= 'z'; r++ {
		code := "Key" + string(unicode.ToUpper(r))
		native := int64(unicode.ToUpper(r))
		m[r] = &Key{Code: code, Key: string(r), Text: string(r), Unmodified: string(r), Native: native, Windows: native, Print: true}
		upper := unicode.ToUpper(r)
		m[upper] = &Key{Code: code, Key: string(upper), Text: string(upper), Unmodified: string(r), Native: native, Windows: native, Shift: true, Print: true}
	}
	for r := '0'; r <= '9'; r++ {
		code := "Digit" + string(r)
		native := int64(r)
		m[r] = &Key{Code: code, Key: string(r), Text: string(r), Unmodified: string(r), Native: native, Windows: native, Print: true}
	}
	shiftedDigits := map[rune]rune{')': '0', '!': '1', '@': '2', '#': '3', '$': '4', '%': '5', '^': '6', '&': '7', '*': '8', '(': '9'}
	for shifted, base := range shiftedDigits {
		code := "Digit" + string(base)
		m[shifted] = &Key{Code: code, Key: string(shifted), Text: string(shifted), Unmodified: string(base), Native: int64(base), Windows: int64(base), Shift: true, Print: true}
	}
	punct := map[rune]struct {
		code             string
		native           int64
		shiftedKey, base rune
	}{
		',': {"Comma", 0xbc, '<', ','}, '.': {"Period", 0xbe, '>', '.'},
		'/': {"Slash", 0xbf, '?', '/'}, ';': {"Semicolon", 0xba, ':', ';'},
		'\'': {"Quote", 0xde, '"', '\''}, '[': {"BracketLeft", 0xdb, '{', '['},
		']': {"BracketRight", 0xdd, '}', ']'}, '-': {"Minus", 0xbd, '_', '-'},
		'=': {"Equal", 0xbb, '+', '='}, '`': {"Backquote", 0xc0, '~', '`'},
		'\\': {"Backslash", 0xdc, '|', '\\'},
	}
	for base, p := range punct {
		m[base] = &Key{Code: p.code, Key: string(base), Text: string(base), Unmodified: string(base), Native: p.native, Windows: p.native, Print: true}
		m[p.shiftedKey] = &Key{Code: p.code, Key: string(p.shiftedKey), Text: string(p.shiftedKey), Unmodified: string(base), Native: p.native, Windows: p.native, Shift: true, Print: true}
	}
	return m
}()

// EncodeUnidentified encodes a keyDown/char/keyUp sequence for a rune with
// no known key mapping.
func EncodeUnidentified(r rune) []*input.DispatchKeyEventParams {
	keyDown := input.DispatchKeyEventParams{Key: "Unidentified"}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	if unicode.IsPrint(r) {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = string(r)
		keyChar.UnmodifiedText = string(r)
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}

// Encode encodes a keyDown/char/keyUp sequence for r, the way a real
// keystroke producing r would be reported over CDP.
func Encode(r rune) []*input.DispatchKeyEventParams {
	if r == '\n' {
		r = '\r'
	}
	v, ok := Keys[r]
	if !ok {
		return EncodeUnidentified(r)
	}
	return EncodeKey(v, r)
}

// EncodeNamed encodes a keyDown/keyUp (and char, if printable) sequence
// for a named key such as "Enter" or "ArrowDown".
func EncodeNamed(name string) []*input.DispatchKeyEventParams {
	v, ok := Named[name]
	if !ok {
		return nil
	}
	return EncodeKey(v, 0)
}

// EncodeKey builds the event sequence for a resolved Key. r, if nonzero,
// is the original rune (used only for the char event's scan code).
func EncodeKey(v *Key, r rune) []*input.DispatchKeyEventParams {
	keyDown := input.DispatchKeyEventParams{
		Key:                   v.Key,
		Code:                  v.Code,
		NativeVirtualKeyCode:  v.Native,
		WindowsVirtualKeyCode: v.Windows,
	}
	if runtime.GOOS == "darwin" {
		keyDown.NativeVirtualKeyCode = 0
	}
	if v.Shift {
		keyDown.Modifiers |= input.ModifierShift
	}
	keyUp := keyDown
	keyDown.Type, keyUp.Type = input.KeyDown, input.KeyUp
	if v.Print {
		keyChar := keyDown
		keyChar.Type = input.KeyChar
		keyChar.Text = v.Text
		keyChar.UnmodifiedText = v.Unmodified
		if r != 0 {
			keyChar.NativeVirtualKeyCode = int64(r)
			keyChar.WindowsVirtualKeyCode = int64(r)
		}
		return []*input.DispatchKeyEventParams{&keyDown, &keyChar, &keyUp}
	}
	return []*input.DispatchKeyEventParams{&keyDown, &keyUp}
}
