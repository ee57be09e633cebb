package gpufft

import (
	"github.com/cwbudde/gpufft/device"
	fftmath "github.com/cwbudde/gpufft/internal/math"
)

// subLength is the length of the sub-transform a kernel stage completes;
// its passes index the twiddle table of that length.
func (s *Stage) subLength() int {
	l := s.Span
	for _, r := range s.Radixes {
		l *= r
	}

	return l
}

// buildTwiddles computes one table per distinct sub-transform length and
// points every kernel stage at its table.
func buildTwiddles(stages []Stage, dir Direction) []twiddleTable {
	var tables []twiddleTable

	index := make(map[int]int)
	offset := 0

	for i := range stages {
		s := &stages[i]
		if s.Kind != StageKernel || len(s.Radixes) == 0 {
			continue
		}

		n := s.subLength()

		t, ok := index[n]
		if !ok {
			t = len(tables)
			index[n] = t
			tables = append(tables, twiddleTable{
				TwiddleRef: TwiddleRef{Length: n, Offset: offset},
				values:     fftmath.Twiddles(n, dir.Sign()),
			})
			offset += n
		}

		s.Twiddle = tables[t].TwiddleRef
	}

	return tables
}

// uploadTwiddles stores all tables in one device buffer.
func uploadTwiddles(ctx device.Context, p Precision, tables []twiddleTable) (device.Buffer, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	last := tables[len(tables)-1]
	total := last.Offset + last.Length

	buf, err := ctx.Alloc(int64(total * p.ElemSize()))
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if err := device.WriteSamples(buf, p, t.Offset, t.values); err != nil {
			_ = buf.Close()
			return nil, err
		}
	}

	return buf, nil
}
