package config

import (
	"strconv"

	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// CPSModelShapes is the canonical CPS registration set from spec.md §6:
// square ResNet-variant classifiers at seven sizes plus one wide-aspect
// shape, with the matching batch caps.
func CPSModelShapes() []types.ModelShape {
	return []types.ModelShape{
		{Name: "resnet-56", Width: 56, Height: 56, BatchCap: 4},
		{Name: "resnet-112", Width: 112, Height: 112, BatchCap: 4},
		{Name: "resnet-168", Width: 168, Height: 168, BatchCap: 4},
		{Name: "resnet-224", Width: 224, Height: 224, BatchCap: 2},
		{Name: "resnet-280", Width: 280, Height: 280, BatchCap: 1},
		{Name: "resnet-336", Width: 336, Height: 336, BatchCap: 1},
		{Name: "resnet-448", Width: 448, Height: 448, BatchCap: 1},
		{Name: "resnet-wide-1280x1920", Width: 1280, Height: 1920, BatchCap: 1},
	}
}

// SGEModelShapes is the canonical SGE registration set from spec.md §6:
// square YOLO-family detectors, batch cap 4 each.
func SGEModelShapes() []types.ModelShape {
	sizes := []int{256, 384, 512, 640}
	out := make([]types.ModelShape, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, types.ModelShape{
			Name: fmtYOLOName(s), Width: s, Height: s, BatchCap: 4,
		})
	}
	return out
}

func fmtYOLOName(size int) string {
	return "yolo-" + strconv.Itoa(size)
}

// Selected filters shapes down to the ones enabled by mask, in
// registration order (mask bit i selects shapes[i]).
func Selected(shapes []types.ModelShape, mask ModelMask) []types.ModelShape {
	out := make([]types.ModelShape, 0, len(shapes))
	for i, s := range shapes {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, s)
		}
	}
	return out
}
