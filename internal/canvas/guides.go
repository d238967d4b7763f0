package canvas

// Guide identifies a platform safe-area preset. Guides are layout aids only:
// they constrain snapping and clamping but are never baked into exports.
type Guide string

const (
	GuideNone    Guide = "none"
	GuideIGStory Guide = "ig_story"
	GuideIGReel  Guide = "ig_reel"
	GuideIGFeed  Guide = "ig_feed"
	GuideFBFeed  Guide = "fb_feed"
)

// Insets are safe-area margins as percentages of the canvas dimensions.
type Insets struct {
	Top, Right, Bottom, Left float64
}

// GuideInsets returns the safe-area margins for a preset.
func GuideInsets(g Guide) Insets {
	switch g {
	case GuideIGStory, GuideIGReel:
		return Insets{Top: 13, Right: 5, Bottom: 13, Left: 5}
	case GuideIGFeed:
		return Insets{Top: 5, Right: 5, Bottom: 5, Left: 5}
	case GuideFBFeed:
		return Insets{Top: 8, Right: 7, Bottom: 8, Left: 7}
	default:
		return Insets{}
	}
}

// GuideLabel returns the human-readable overlay label for a preset.
func GuideLabel(g Guide) string {
	switch g {
	case GuideIGStory:
		return "IG Story safe area"
	case GuideIGReel:
		return "IG Reel safe area"
	case GuideIGFeed:
		return "IG Feed (1:1) safe area"
	case GuideFBFeed:
		return "Facebook Feed (1.91:1) safe area"
	default:
		return ""
	}
}

// boundsPad is the inward padding applied to the active bounds before
// snapping and clamping, in intrinsic pixels.
const boundsPad = 6.0

// SafeAreaRect returns the guide's safe-area rectangle on a canvas of the
// given size, without padding. For GuideNone it is the full canvas.
func SafeAreaRect(g Guide, canvasW, canvasH float64) Rect {
	m := GuideInsets(g)
	left := m.Left / 100 * canvasW
	top := m.Top / 100 * canvasH
	right := canvasW - m.Right/100*canvasW
	bottom := canvasH - m.Bottom/100*canvasH
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// ActiveBounds returns the rectangle drag and resize operate against: the
// guide's safe area (or the full canvas), inset by boundsPad.
func ActiveBounds(g Guide, canvasW, canvasH float64) Rect {
	r := SafeAreaRect(g, canvasW, canvasH)
	return Rect{
		Left:   r.Left + boundsPad,
		Top:    r.Top + boundsPad,
		Width:  r.Width - 2*boundsPad,
		Height: r.Height - 2*boundsPad,
	}
}
