package maskops

// foregroundThreshold separates foreground from background in soft masks.
const foregroundThreshold = 128

// KeepLargestComponent clears every 4-connected foreground island except the
// largest one. Ties keep the island found first in row-major order.
func KeepLargestComponent(mask []byte, width, height int) ([]byte, error) {
	if err := checkMask(mask, width, height); err != nil {
		return nil, err
	}

	labels, sizes := connectedComponents(mask, width, height)
	best, bestSize := 0, 0
	for label, size := range sizes {
		if size > bestSize {
			best, bestSize = label, size
		}
	}

	out := make([]byte, len(mask))
	for i, l := range labels {
		if l != 0 && int(l) == best {
			out[i] = mask[i]
		}
	}
	return out, nil
}

// CountComponents returns the number of 4-connected foreground islands.
func CountComponents(mask []byte, width, height int) (int, error) {
	if err := checkMask(mask, width, height); err != nil {
		return 0, err
	}
	_, sizes := connectedComponents(mask, width, height)
	return len(sizes) - 1, nil
}

// connectedComponents labels foreground pixels with 1-based component ids.
// sizes[0] is unused.
func connectedComponents(mask []byte, width, height int) ([]int32, []int) {
	labels := make([]int32, len(mask))
	sizes := []int{0}
	queue := make([]int, 0, 64)

	for start := range mask {
		if mask[start] < foregroundThreshold || labels[start] != 0 {
			continue
		}
		label := int32(len(sizes)) //nolint:gosec // G115: bounded by pixel count
		labels[start] = label
		size := 0
		queue = append(queue[:0], start)
		visit := func(n int) {
			if mask[n] >= foregroundThreshold && labels[n] == 0 {
				labels[n] = label
				queue = append(queue, n)
			}
		}
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++
			x, y := i%width, i/width
			if x > 0 {
				visit(i - 1)
			}
			if x+1 < width {
				visit(i + 1)
			}
			if y > 0 {
				visit(i - width)
			}
			if y+1 < height {
				visit(i + width)
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}
