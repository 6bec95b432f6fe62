package artifacts

import (
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFileName reduces a client supplied upload name to a flat, ASCII-only
// file name. The result may be empty; callers must treat that as invalid.
//
//	"../../etc/passwd"     -> "etc_passwd"
//	"My cool result.json"  -> "My_cool_result.json"
//	"_private.json"        -> "private.json"
func SanitizeFileName(name string) string {
	name = norm.NFKD.String(name)

	ascii := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] < 0x80 {
			ascii = append(ascii, name[i])
		}
	}
	name = string(ascii)

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFileNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if runtime.GOOS == "windows" && name != "" {
		base, _, _ := strings.Cut(name, ".")
		if _, ok := windowsDeviceNames[strings.ToUpper(base)]; ok {
			name = "_" + name
		}
	}

	return name
}
