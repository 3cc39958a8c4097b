package crawler

import (
	"regexp"
	"strings"
)

// windowsDeviceNames are reserved filenames on Windows. A sanitized name
// must never collide with one of these regardless of the platform we run
// on, since the database may later be consumed from anywhere.
var windowsDeviceNames = map[string]bool{
	"CON": true, "AUX": true, "PRN": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true,
}

var nonPortableRE = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// maxStemLen caps the sanitized filename stem; the extension is kept intact
// so archive-mode detection by suffix still works on the temp file.
const maxStemLen = 40

// SecureFilename turns an untrusted artifact filename into something safe to
// open in a local directory: directory components are stripped, the stem is
// truncated, non-portable characters are removed, and reserved device names
// are escaped. Never returns an empty string.
func SecureFilename(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}

	ext := ""
	if i := strings.LastIndex(name, "."); i > 0 {
		// Keep compound archive suffixes like ".tar.gz" together.
		stem := name[:i]
		if j := strings.LastIndex(stem, "."); j > 0 && strings.HasSuffix(stem, ".tar") {
			i = j
		}
		ext = name[i:]
		name = name[:i]
	}

	if len(name) > maxStemLen {
		name = name[:maxStemLen]
	}
	name = nonPortableRE.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "_"
	}
	ext = nonPortableRE.ReplaceAllString(ext, "")

	upper := strings.ToUpper(name)
	if i := strings.Index(upper, "."); i >= 0 {
		upper = upper[:i]
	}
	if windowsDeviceNames[upper] {
		name = "_" + name
	}

	return name + ext
}
