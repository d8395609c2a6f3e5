package grabcut

const (
	MaskBackground byte = 0
	MaskForeground byte = 255
)

// ExtractMask converts labels to a 0/255 mask. With full set, the mask covers
// the whole image and is zero outside region; otherwise it covers region only.
func ExtractMask(labels *LabelGrid, region Rect, full bool) []byte {
	if full {
		mask := make([]byte, labels.Width*labels.Height)
		for y := region.Y; y < region.Y+region.Height; y++ {
			for x := region.X; x < region.X+region.Width; x++ {
				if labels.At(x, y).IsForeground() {
					mask[y*labels.Width+x] = MaskForeground
				}
			}
		}
		return mask
	}

	mask := make([]byte, region.Area())
	for y := range region.Height {
		for x := range region.Width {
			if labels.At(region.X+x, region.Y+y).IsForeground() {
				mask[y*region.Width+x] = MaskForeground
			}
		}
	}
	return mask
}

// CountForeground returns the number of foreground bytes in mask.
func CountForeground(mask []byte) int {
	n := 0
	for _, v := range mask {
		if v == MaskForeground {
			n++
		}
	}
	return n
}
