package kernels

// butterfly computes the length-r DFT of v in place. root(e) must return
// W_r^e for 0 <= e < r in the transform direction. tmp needs len >= r.
func butterfly(v, tmp []complex128, r int, root func(e int) complex128) {
	switch r {
	case 1:
		return
	case 2:
		v[0], v[1] = v[0]+v[1], v[0]-v[1]
		return
	case 4:
		// root(1) is -i for forward and +i for inverse transforms.
		j := root(1)
		a0, a1 := v[0]+v[2], v[0]-v[2]
		b0, b1 := v[1]+v[3], (v[1]-v[3])*j
		v[0], v[1], v[2], v[3] = a0+b0, a1+b1, a0-b0, a1-b1

		return
	}

	for k := range r {
		var acc complex128

		e := 0
		for t := range r {
			acc += v[t] * root(e)

			e += k
			if e >= r {
				e -= r
			}
		}

		tmp[k] = acc
	}

	copy(v[:r], tmp[:r])
}
