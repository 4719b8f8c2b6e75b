package vocabulary

import "github.com/ayusman/signbridge/internal/landmark"

// DefaultVersion is the version of the built-in vocabulary.
const DefaultVersion = "builtin-1"

// defaultSigns pairs the built-in sign names with their reference poses.
var defaultSigns = []struct {
	name, category, pose string
}{
	{"Hello", "greeting", "open_palm"},
	{"Thank you", "polite", "v_sign"},
	{"Yes", "response", "thumbs_up"},
	{"No", "response", "fist"},
	{"Help", "request", "point_up"},
}

// Default returns the built-in five-sign vocabulary used when no catalog
// has been imported.
func Default() *Vocabulary {
	entries := make([]Entry, 0, len(defaultSigns))
	for _, d := range defaultSigns {
		entries = append(entries, Entry{
			Name:      d.name,
			Category:  d.category,
			Kind:      KindStatic,
			Signature: landmark.Poses[d.pose]().Normalize(),
		})
	}
	v, err := New(DefaultVersion, entries)
	if err != nil {
		panic(err)
	}
	return v
}
