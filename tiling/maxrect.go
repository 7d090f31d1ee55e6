package tiling

import "github.com/vncbridge/rfbcache/pixel"

// MaxRect describes the single largest axis-aligned rectangle of Hit tiles
// found in a grid, in both pixel space and tile-extent terms.
type MaxRect struct {
	Rect      pixel.Rect
	TilesWide int
	TilesHigh int
}

// FindLargestHitRectangle returns the largest axis-aligned rectangle of Hit
// tiles in a tilesX-by-tilesY row-major grid, provided its area is at least
// max(1, minTiles). It returns the zero MaxRect and false if no such
// rectangle exists.
//
// This is the classic largest-rectangle-in-a-binary-matrix algorithm,
// O(tilesX*tilesY): for each row, a histogram of "consecutive Hit tiles
// ending at this row" heights is collapsed through a monotonic stack to
// find the largest rectangle ending at that row; the running maximum across
// rows is the answer. Ties are broken by whichever rectangle the scan
// encounters first: the one whose bottom row comes first, and within a row
// the first candidate the monotonic stack yields (not necessarily the
// lowest x).
func FindLargestHitRectangle(tiles []Info, tilesX, tilesY, minTiles int) (MaxRect, bool) {
	if len(tiles) == 0 || tilesX <= 0 || tilesY <= 0 {
		return MaxRect{}, false
	}

	threshold := minTiles
	if threshold <= 0 {
		threshold = 1
	}

	heights := make([]int, tilesX)

	var (
		best     MaxRect
		bestArea int
		found    bool
	)

	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			if tiles[ty*tilesX+tx].State == Hit {
				heights[tx]++
			} else {
				heights[tx] = 0
			}
		}

		rowHeight, x0, x1, y0, area, ok := largestRectangleInHistogram(heights, ty)
		if ok && area >= threshold && (!found || area > bestArea) {
			found = true
			bestArea = area
			best = rectFromTileSpan(tiles, tilesX, x0, x1, y0, ty)
			_ = rowHeight
		}
	}

	if !found {
		return MaxRect{}, false
	}

	return best, true
}

// largestRectangleInHistogram finds the largest-area rectangle in the
// histogram given by heights, where heights[tx] is the number of
// consecutive Hit tiles ending at row bottomRow (inclusive). Returns the
// tile-column span [x0, x1] and the topmost row y0 the winning rectangle
// starts at, along with its area and the bar height it was built from.
func largestRectangleInHistogram(heights []int, bottomRow int) (height, x0, x1, y0, area int, ok bool) {
	type stackEntry struct {
		index  int
		height int
	}

	var stack []stackEntry

	bestArea, bestX0, bestX1, bestHeight := 0, 0, 0, 0

	consider := func(i int, h int) {
		for len(stack) > 0 && stack[len(stack)-1].height >= h {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			left := 0
			if len(stack) > 0 {
				left = stack[len(stack)-1].index + 1
			}

			width := i - left
			candidateArea := top.height * width

			if candidateArea > bestArea {
				bestArea = candidateArea
				bestX0 = left
				bestX1 = i - 1
				bestHeight = top.height
			}
		}

		stack = append(stack, stackEntry{index: i, height: h})
	}

	for i, h := range heights {
		consider(i, h)
	}

	consider(len(heights), 0) // sentinel zero-height bar flushes the stack

	if bestArea == 0 {
		return 0, 0, 0, 0, 0, false
	}

	return bestHeight, bestX0, bestX1, bottomRow - bestHeight + 1, bestArea, true
}

func rectFromTileSpan(tiles []Info, tilesX, x0, x1, y0, y1 int) MaxRect {
	topLeft := tiles[y0*tilesX+x0].Rect
	bottomRight := tiles[y1*tilesX+x1].Rect

	return MaxRect{
		Rect:      pixel.NewRect(topLeft.X1, topLeft.Y1, bottomRight.X2, bottomRight.Y2),
		TilesWide: x1 - x0 + 1,
		TilesHigh: y1 - y0 + 1,
	}
}
