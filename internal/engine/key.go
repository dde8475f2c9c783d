package engine

import "strings"

var keyNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var keyAliases = map[string]int{
	"Db": 1, "Eb": 3, "Gb": 6, "Ab": 8, "Bb": 10,
}

// TransposeKey shifts a key label ("C", "F#m", "Bb") by the given number of
// semitones, preserving a minor suffix. Unknown labels pass through
// unchanged.
func TransposeKey(key string, semitones int) string {
	if key == "" || semitones == 0 {
		return key
	}

	root := key
	suffix := ""
	if strings.HasSuffix(key, "m") && key != "m" {
		root = key[:len(key)-1]
		suffix = "m"
	}

	idx := -1
	for i, name := range keyNames {
		if name == root {
			idx = i
			break
		}
	}
	if idx < 0 {
		if i, ok := keyAliases[root]; ok {
			idx = i
		} else {
			return key
		}
	}

	idx = ((idx+semitones)%12 + 12) % 12
	return keyNames[idx] + suffix
}
