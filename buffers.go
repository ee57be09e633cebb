package gpufft

import "errors"

// maxScratchRegions is the number of dense scratch regions a plan may use.
const maxScratchRegions = 2

var errNoAssignment = errors.New("no buffer assignment for stage chain")

// writeOrder lists the roles a stage may write, most preferred first.
var writeOrder = []BufferRole{UserOutput, Scratch0, Scratch1}

// assignBuffers picks the input and output role of every stage using as
// few scratch regions as possible. When even two regions do not admit an
// assignment, the last stage is redirected to scratch and a copy into the
// user output is appended.
func assignBuffers(stages []Stage, placement Placement) ([]Stage, int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		for regions := 0; regions <= maxScratchRegions; regions++ {
			outs, ok := assignRoles(stages, placement, regions)
			if !ok {
				continue
			}

			in := UserInput
			for i := range stages {
				stages[i].In = in
				stages[i].Out = outs[i]
				in = outs[i]
			}

			return stages, regions, nil
		}

		last := stages[len(stages)-1]
		stages = append(stages, Stage{
			Kind:   StageCopy,
			Kernel: StageCopy.String(),
			Dim:    last.Dim,
			Inner:  1,
			Outer:  1,
		})
	}

	return nil, 0, errNoAssignment
}

// physical maps a role to the memory it denotes. In-place plans read and
// write one user buffer.
func physical(r BufferRole, placement Placement) BufferRole {
	if placement == InPlace && r == UserOutput {
		return UserInput
	}

	return r
}

func compatible(s *Stage, in, out BufferRole, placement Placement) bool {
	return s.aliasable() || physical(in, placement) != physical(out, placement)
}

type roleSet uint8

func (s roleSet) has(r BufferRole) bool { return s&(1<<r) != 0 }

func (s *roleSet) add(r BufferRole) { *s |= 1 << r }

// assignRoles returns the output role of every stage, or false when no
// assignment with the given number of scratch regions exists. reach[i]
// holds the roles stage i can write given a valid prefix; the chain is then
// walked backwards from the user output, taking the first compatible role
// in writeOrder.
func assignRoles(stages []Stage, placement Placement, regions int) ([]BufferRole, bool) {
	cands := writeOrder[:1+regions]

	reach := make([]roleSet, len(stages))

	var prev roleSet
	prev.add(UserInput)

	for i := range stages {
		for _, out := range cands {
			for _, in := range []BufferRole{UserInput, UserOutput, Scratch0, Scratch1} {
				if prev.has(in) && compatible(&stages[i], in, out, placement) {
					reach[i].add(out)
					break
				}
			}
		}

		prev = reach[i]
	}

	last := len(stages) - 1
	if !reach[last].has(UserOutput) {
		return nil, false
	}

	outs := make([]BufferRole, len(stages))
	outs[last] = UserOutput

	for i := last; i > 0; i-- {
		found := false

		for _, in := range cands {
			if reach[i-1].has(in) && compatible(&stages[i], in, outs[i], placement) {
				outs[i-1] = in
				found = true

				break
			}
		}

		if !found {
			return nil, false
		}
	}

	return outs, true
}
