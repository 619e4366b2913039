package table

import "github.com/Sternrassler/nlp-enrich/pkg/apierror"

// Batch partitions records into ordered, contiguous batches of size
// elements. Only the last batch may be shorter. An empty input yields no
// batches.
func Batch(records []Record, size int) ([][]Record, error) {
	if size <= 0 {
		return nil, apierror.Configf("batch_size", "must be positive, got %d", size)
	}
	if len(records) == 0 {
		return nil, nil
	}

	batches := make([][]Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end:end])
	}
	return batches, nil
}
