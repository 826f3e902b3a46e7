// Package corpus reads tokenized clinical notes and turns them into batches.
package corpus

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one row of a corpus file.
type Record struct {
	DocID  string    `csv:"doc_id"`
	Tokens IndexList `csv:"tokens"`
	Labels CodeList  `csv:"labels"`
}

// IndexList is a space-separated list of token indices.
type IndexList []int

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (l *IndexList) UnmarshalCSV(s string) error {
	idx, err := parseInts(strings.Fields(s))
	if err != nil {
		return errors.Wrap(err, "bad token index")
	}
	*l = idx
	return nil
}

// CodeList is a ';'-separated list of label indices.
type CodeList []int

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (l *CodeList) UnmarshalCSV(s string) error {
	var fields []string
	for _, f := range strings.Split(s, ";") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	idx, err := parseInts(fields)
	if err != nil {
		return errors.Wrap(err, "bad label index")
	}
	*l = idx
	return nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, errors.Errorf("negative index %d", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// validate checks labels against the label space.
func (r *Record) validate(labelCount int) error {
	for _, l := range r.Labels {
		if l >= labelCount {
			return errors.Errorf("document %s: label %d outside [0, %d)", r.DocID, l, labelCount)
		}
	}
	return nil
}
