package corpus

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type vocabRow struct {
	Index int    `csv:"index"`
	Token string `csv:"token"`
}

type codeRow struct {
	Index int    `csv:"index"`
	Code  string `csv:"code"`
}

type descriptionRow struct {
	Code        string `csv:"code"`
	Description string `csv:"description"`
}

// Lookups are the read-only tables used to size the embedding and to decode
// diagnostics.
type Lookups struct {
	Vocab        map[int]string    // token index -> token
	Codes        map[int]string    // label index -> code
	Descriptions map[string]string // code -> description
}

// VocabSize is the largest token index plus one, so index 0 stays free for
// padding.
func (l *Lookups) VocabSize() int {
	largest := 0
	for idx := range l.Vocab {
		if idx > largest {
			largest = idx
		}
	}
	return largest + 1
}

// HasDescriptions reports whether the code tables needed for diagnostics
// were loaded.
func (l *Lookups) HasDescriptions() bool {
	return l != nil && len(l.Codes) > 0
}

// Words decodes up to limit tokens, skipping padding.
func (l *Lookups) Words(tokens []int, limit int) []string {
	var words []string
	for _, t := range tokens {
		if len(words) == limit {
			break
		}
		if t == 0 {
			continue
		}
		w, ok := l.Vocab[t]
		if !ok {
			w = fmt.Sprintf("<%d>", t)
		}
		words = append(words, w)
	}
	return words
}

// CodeDescriptions renders the positive labels of a multi-hot row as
// "code: description" pairs.
func (l *Lookups) CodeDescriptions(labels []float64) string {
	var parts []string
	for i, v := range labels {
		if v != 1 {
			continue
		}
		code := l.Codes[i]
		parts = append(parts, code+": "+l.Descriptions[code])
	}
	return strings.Join(parts, ", ")
}

// LoadLookups reads the vocabulary table, and the code and description
// tables when withDescriptions is set.
func LoadLookups(fs afero.Fs, dataDir string, labelCount, vocabMin int, withDescriptions bool) (*Lookups, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &Lookups{
		Vocab:        make(map[int]string),
		Codes:        make(map[int]string),
		Descriptions: make(map[string]string),
	}

	var vocab []vocabRow
	if err := readTable(fs, VocabPath(dataDir, vocabMin), &vocab); err != nil {
		return nil, err
	}
	for _, r := range vocab {
		l.Vocab[r.Index] = r.Token
	}

	if !withDescriptions {
		return l, nil
	}

	var codes []codeRow
	if err := readTable(fs, CodesPath(dataDir, labelCount), &codes); err != nil {
		return nil, err
	}
	for _, r := range codes {
		l.Codes[r.Index] = r.Code
	}

	var descs []descriptionRow
	if err := readTable(fs, DescriptionsPath(dataDir), &descs); err != nil {
		return nil, err
	}
	for _, r := range descs {
		l.Descriptions[r.Code] = r.Description
	}
	return l, nil
}

func readTable(fs afero.Fs, path string, out interface{}) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "error opening lookup table %s", path)
	}
	defer f.Close()

	if err := gocsv.Unmarshal(f, out); err != nil {
		return errors.Wrapf(err, "error decoding lookup table %s", path)
	}
	return nil
}

// VocabPath is <dataDir>/vocab_<vocabMin>.csv.
func VocabPath(dataDir string, vocabMin int) string {
	return filepath.Join(dataDir, fmt.Sprintf("vocab_%d.csv", vocabMin))
}

// CodesPath is <dataDir>/codes_<Y>.csv.
func CodesPath(dataDir string, labelCount int) string {
	return filepath.Join(dataDir, fmt.Sprintf("codes_%d.csv", labelCount))
}

// DescriptionsPath is <dataDir>/descriptions.csv.
func DescriptionsPath(dataDir string) string {
	return filepath.Join(dataDir, "descriptions.csv")
}

// SplitPath locates the corpus file for split. Without an explicit training
// path the file is <dataDir>/notes_<Y>_<split>.csv; otherwise every "train"
// in dataPath is replaced by split.
func SplitPath(dataDir string, labelCount int, dataPath, split string) string {
	if dataPath == "" {
		return filepath.Join(dataDir, fmt.Sprintf("notes_%d_%s.csv", labelCount, split))
	}
	return strings.ReplaceAll(dataPath, "train", split)
}
