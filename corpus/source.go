package corpus

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Iterator yields the batches of one pass over a corpus. Next returns io.EOF
// once the pass is exhausted. An Iterator cannot be restarted.
type Iterator interface {
	Next() (*Batch, error)
	Close() error
}

// Source describes how a corpus file is read into batches. Every call to Open
// starts a new full pass.
type Source struct {
	Fs         afero.Fs // nil reads from the OS filesystem
	Path       string
	BatchSize  int
	LabelCount int

	// SplitDocs cuts each document into chunks of ChunkLen tokens. A
	// trailing chunk shorter than MinSize is dropped when the document
	// has another chunk.
	SplitDocs bool
	ChunkLen  int
	MinSize   int
}

// Open starts a pass over the corpus.
func (s Source) Open() (Iterator, error) {
	if s.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0, got %d", s.BatchSize)
	}
	if s.LabelCount <= 0 {
		return nil, errors.Errorf("label count must be > 0, got %d", s.LabelCount)
	}
	if s.SplitDocs && s.ChunkLen <= 0 {
		return nil, errors.Errorf("chunk length must be > 0 when splitting, got %d", s.ChunkLen)
	}

	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening corpus %s", s.Path)
	}

	it := &streamIterator{
		src:     s,
		file:    f,
		records: make(chan Record, s.BatchSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(it.done)
		// UnmarshalToChan closes the channel when it returns
		it.decodeErr = gocsv.UnmarshalToChan(f, it.records)
	}()
	return it, nil
}

type streamIterator struct {
	src       Source
	file      afero.File
	records   chan Record
	done      chan struct{}
	decodeErr error
	exhausted bool
}

func (it *streamIterator) Next() (*Batch, error) {
	if it.exhausted {
		return nil, io.EOF
	}

	var group []Record
	for len(group) < it.src.BatchSize {
		rec, ok := <-it.records
		if !ok {
			break
		}
		if err := rec.validate(it.src.LabelCount); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", it.src.Path)
		}
		group = append(group, rec)
	}

	if len(group) < it.src.BatchSize {
		it.exhausted = true
		<-it.done
		if it.decodeErr != nil {
			return nil, errors.Wrapf(it.decodeErr, "error decoding %s", it.src.Path)
		}
		if len(group) == 0 {
			return nil, io.EOF
		}
	}

	if it.src.SplitDocs {
		return splitBatch(group, it.src.LabelCount, it.src.ChunkLen, it.src.MinSize), nil
	}
	return wholeBatch(group, it.src.LabelCount), nil
}

// Close stops the pass, draining the decoder so its goroutine can exit.
func (it *streamIterator) Close() error {
	for range it.records {
	}
	<-it.done
	it.exhausted = true
	return it.file.Close()
}

func wholeBatch(group []Record, labelCount int) *Batch {
	b := &Batch{
		DocIDs: make([]string, len(group)),
		Labels: make([][]float64, len(group)),
	}
	rows := make([][]int, len(group))
	for i, rec := range group {
		b.DocIDs[i] = rec.DocID
		rows[i] = rec.Tokens
		b.Labels[i] = multiHot(rec.Labels, labelCount)
	}
	b.Inputs = pad(rows)
	return b
}

func splitBatch(group []Record, labelCount, chunkLen, minSize int) *Batch {
	b := &Batch{
		DocIDs:    make([]string, len(group)),
		Labels:    make([][]float64, len(group)),
		DocStarts: make([]int, len(group)),
	}
	var rows [][]int
	for i, rec := range group {
		b.DocIDs[i] = rec.DocID
		b.Labels[i] = multiHot(rec.Labels, labelCount)
		b.DocStarts[i] = len(rows)

		chunks, offsets := chunk(rec.Tokens, chunkLen, minSize)
		rows = append(rows, chunks...)
		b.Offsets = append(b.Offsets, offsets...)
	}
	b.Inputs = pad(rows)
	return b
}

// chunk always returns at least one chunk per document.
func chunk(tokens []int, chunkLen, minSize int) ([][]int, []int) {
	if len(tokens) <= chunkLen {
		return [][]int{tokens}, []int{0}
	}
	var chunks [][]int
	var offsets []int
	for start := 0; start < len(tokens); start += chunkLen {
		end := start + chunkLen
		if end > len(tokens) {
			end = len(tokens)
		}
		if end-start < minSize && len(chunks) > 0 {
			break
		}
		chunks = append(chunks, tokens[start:end])
		offsets = append(offsets, start)
	}
	return chunks, offsets
}
