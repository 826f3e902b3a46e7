package corpus

// Batch is a group of documents ready for one forward pass.
//
// Inputs rows are padded with 0 to a common length. Labels has one multi-hot
// row per document. When documents were split into chunks, Inputs has one row
// per chunk, Offsets holds each chunk's token offset within its document and
// DocStarts holds the Inputs row of each document's first chunk; otherwise
// both are nil.
type Batch struct {
	DocIDs    []string
	Inputs    [][]int
	Labels    [][]float64
	Offsets   []int
	DocStarts []int
}

// SeqLen is the padded sequence length of the batch.
func (b *Batch) SeqLen() int {
	if len(b.Inputs) == 0 {
		return 0
	}
	return len(b.Inputs[0])
}

// Size is the number of documents in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// DocTokens returns the tokens of document i, reassembled from its chunks and
// without padding.
func (b *Batch) DocTokens(i int) []int {
	if b.DocStarts == nil {
		return trimPadding(b.Inputs[i])
	}
	end := len(b.Inputs)
	if i+1 < len(b.DocStarts) {
		end = b.DocStarts[i+1]
	}
	var out []int
	for r := b.DocStarts[i]; r < end; r++ {
		out = append(out, trimPadding(b.Inputs[r])...)
	}
	return out
}

func trimPadding(row []int) []int {
	n := len(row)
	for n > 0 && row[n-1] == 0 {
		n--
	}
	return row[:n]
}

func pad(rows [][]int) [][]int {
	longest := 0
	for _, r := range rows {
		if len(r) > longest {
			longest = len(r)
		}
	}
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = make([]int, longest)
		copy(out[i], r)
	}
	return out
}

func multiHot(labels []int, labelCount int) []float64 {
	row := make([]float64, labelCount)
	for _, l := range labels {
		row[l] = 1
	}
	return row
}
