package canvas

import "math"

// SnapThreshold is the distance within which a dragged edge or center is
// forced to align exactly with a bound edge or the canvas center line, in
// intrinsic pixels.
const SnapThreshold = 8.0

// snapAndClamp adjusts a proposed top-left so the block snaps to the active
// bounds' edges and the canvas center lines, then clamps the full bounding
// box inside the active bounds. Each edge and center snaps independently.
func snapAndClamp(proposed Rect, bounds Rect, canvasW, canvasH float64) (left, top float64) {
	left = proposed.Left
	top = proposed.Top
	right := left + proposed.Width
	bottom := top + proposed.Height

	// Snap to bounds edges
	if math.Abs(left-bounds.Left) < SnapThreshold {
		left = bounds.Left
	}
	if math.Abs(right-bounds.Right()) < SnapThreshold {
		left = bounds.Right() - proposed.Width
	}
	if math.Abs(top-bounds.Top) < SnapThreshold {
		top = bounds.Top
	}
	if math.Abs(bottom-bounds.Bottom()) < SnapThreshold {
		top = bounds.Bottom() - proposed.Height
	}

	// Snap block center to canvas center lines
	cx := left + proposed.Width/2
	cy := top + proposed.Height/2
	if math.Abs(cx-canvasW/2) < SnapThreshold {
		left = canvasW/2 - proposed.Width/2
	}
	if math.Abs(cy-canvasH/2) < SnapThreshold {
		top = canvasH/2 - proposed.Height/2
	}

	// Clamp inside active bounds
	left = math.Min(math.Max(left, bounds.Left), bounds.Right()-proposed.Width)
	top = math.Min(math.Max(top, bounds.Top), bounds.Bottom()-proposed.Height)

	return left, top
}

// snapAndClampWidth adjusts a proposed wrap width during a resize: the right
// edge snaps to the active bounds' right edge, and the result is clamped to
// [MinBlockWidthPx, distance to the bounds' right edge].
func snapAndClampWidth(left, proposedWidth float64, bounds Rect) float64 {
	w := proposedWidth
	if math.Abs(left+w-bounds.Right()) < SnapThreshold {
		w = bounds.Right() - left
	}
	return math.Max(MinBlockWidthPx, math.Min(w, bounds.Right()-left))
}
