package math

// Transpose writes the cols x rows transpose of the rows x cols row-major
// matrix src into dst. dst and src must not overlap.
func Transpose[T any](dst, src []T, rows, cols int) {
	for r := range rows {
		row := src[r*cols : (r+1)*cols]
		for c, v := range row {
			dst[c*rows+r] = v
		}
	}
}

// TransposeIndex maps the row-major index i of a rows x cols matrix to its
// index in the transposed matrix.
func TransposeIndex(i, rows, cols int) int {
	r, c := i/cols, i%cols
	return c*rows + r
}
