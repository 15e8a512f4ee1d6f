package dataset

import (
	"context"
	"fmt"
	"math"

	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/signal"
	"github.com/siftdata/sift/internal/vectorindex"
)

// ComputeSignal runs a signal over a source field, materializes the output
// column, and grafts the output schema under the source field. The output
// lands at source path + signal name. Concurrent computations for the same
// output path are rejected with ErrComputeInFlight.
func (d *Dataset) ComputeSignal(ctx context.Context, sig signal.Signal, config map[string]any, source schema.Path) (schema.Path, error) {
	if err := schema.ValidatePath(source); err != nil {
		return nil, err
	}
	outPath := source.Child(sig.Name())
	outKey := schema.SerializePath(outPath)

	d.mu.Lock()
	field := d.sch.GetField(source)
	if field == nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", schema.ErrFieldNotFound, source)
	}
	outField, err := signal.OutputField(sig, config, source, field.DType)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if _, busy := d.inflight[outKey]; busy {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrComputeInFlight, outPath)
	}
	d.inflight[outKey] = struct{}{}
	numRows := len(d.rows)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, outKey)
		d.mu.Unlock()
	}()

	// Flatten every row's source leaves into one batch, keeping the
	// per-row trees so outputs can be reassembled in the same shape.
	depth := wildcardDepth(source)
	trees := make([]any, numRows)
	var flat []any
	for i := 0; i < numRows; i++ {
		trees[i] = d.ValueTree(i, source)
		collectLeaves(trees[i], depth, &flat)
	}

	outputs, err := sig.Compute(ctx, flat)
	if err != nil {
		return nil, fmt.Errorf("computing signal %s over %s: %w", sig.Name(), source, err)
	}
	if len(outputs) != len(flat) {
		return nil, fmt.Errorf("signal %s returned %d values for %d inputs", sig.Name(), len(outputs), len(flat))
	}

	column := make([]any, numRows)
	cursor := 0
	for i := 0; i < numRows; i++ {
		column[i] = rebuildTree(trees[i], depth, func() any {
			v := outputs[cursor]
			cursor++
			return v
		})
	}

	// Copy-on-write schema swap: readers holding the old schema keep a
	// consistent view until the column and graft land together.
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.sch.Clone()
	if err := next.Graft(outPath, outField); err != nil {
		return nil, err
	}
	d.sch = next
	d.columns[outKey] = column
	d.version++
	return outPath, nil
}

// ComputeUDFValues runs a signal over the source values of selected rows
// without materializing a column or touching the schema. The result holds
// one output tree per requested ordinal, shaped like the source.
func (d *Dataset) ComputeUDFValues(ctx context.Context, sig signal.Signal, source schema.Path, ordinals []int) ([]any, error) {
	depth := wildcardDepth(source)
	trees := make([]any, len(ordinals))
	var flat []any
	for i, ord := range ordinals {
		trees[i] = d.ValueTree(ord, source)
		collectLeaves(trees[i], depth, &flat)
	}

	outputs, err := sig.Compute(ctx, flat)
	if err != nil {
		return nil, fmt.Errorf("computing signal %s over %s: %w", sig.Name(), source, err)
	}
	if len(outputs) != len(flat) {
		return nil, fmt.Errorf("signal %s returned %d values for %d inputs", sig.Name(), len(outputs), len(flat))
	}

	out := make([]any, len(ordinals))
	cursor := 0
	for i := range ordinals {
		out[i] = rebuildTree(trees[i], depth, func() any {
			v := outputs[cursor]
			cursor++
			return v
		})
	}
	return out, nil
}

// DeleteSignal removes a signal-produced subtree: its schema field, its
// materialized column, and any vector indexes built beneath it. The target
// must be a signal root.
func (d *Dataset) DeleteSignal(target schema.Path) error {
	if err := schema.ValidatePath(target); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	field := d.sch.GetField(target)
	if field == nil {
		return fmt.Errorf("%w: %s", schema.ErrFieldNotFound, target)
	}
	if !field.SignalRoot {
		return fmt.Errorf("%w: %s", ErrNotSignalRoot, target)
	}

	next := d.sch.Clone()
	if err := next.DeleteField(target); err != nil {
		return err
	}
	d.sch = next

	delete(d.columns, schema.SerializePath(target))
	for key, ix := range d.indexes {
		if ix.Path.HasPrefix(target) {
			delete(d.indexes, key)
		}
	}
	d.version++
	return nil
}

// ComputeEmbeddingIndex embeds a text field's values and stores one vector
// per row. Rows with multiple leaf values (repeated fields) get the
// normalized mean of their element vectors; rows with no value get no
// vector and never match a semantic scan.
func (d *Dataset) ComputeEmbeddingIndex(ctx context.Context, embedder embedding.Embedder, source schema.Path) error {
	if err := schema.ValidatePath(source); err != nil {
		return err
	}
	key := vectorindex.Key(source, embedder.Name())

	d.mu.Lock()
	field := d.sch.GetField(source)
	if field == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", schema.ErrFieldNotFound, source)
	}
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrComputeInFlight, source)
	}
	d.inflight[key] = struct{}{}
	numRows := len(d.rows)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
	}()

	var texts []string
	rowOf := make([]int, 0, numRows)
	for i := 0; i < numRows; i++ {
		for _, v := range d.Values(i, source) {
			if text, ok := v.(string); ok {
				texts = append(texts, text)
				rowOf = append(rowOf, i)
			}
		}
	}

	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", source, err)
	}

	perRow := make([][]float32, numRows)
	rowCount := make([]int, numRows)
	for j, vec := range vecs {
		i := rowOf[j]
		if perRow[i] == nil {
			perRow[i] = make([]float32, embedder.Dims())
		}
		for k := range vec {
			perRow[i][k] += vec[k]
		}
		rowCount[i]++
	}
	for i, vec := range perRow {
		if rowCount[i] > 1 {
			normalize(vec)
		}
	}

	ix := vectorindex.New(source, embedder.Name(), embedder.Dims(), perRow)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexes[key] = ix
	d.version++
	return nil
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}
