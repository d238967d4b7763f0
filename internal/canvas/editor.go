package canvas

import (
	"image"
	"math"
)

// Editor holds the state of one compositing session: the background image,
// the ordered block list, the selection, and any in-progress drag or resize.
// State is local to a single editor instance; it is not safe for concurrent
// use and does not need to be.
type Editor struct {
	fonts *FontSet

	bg         *image.NRGBA
	intrinsicW float64
	intrinsicH float64

	// Displayed (on-screen) size of the canvas. Pointer input is converted
	// from this space into intrinsic space at every event, so a viewport
	// resize mid-drag cannot desynchronize the pointer from the block.
	displayW float64
	displayH float64

	blocks   []TextBlock
	selected string

	guide       Guide
	showCenters bool
	showBorders bool

	dragging bool
	dragDX   float64 // pointer offset from the dragged block's left edge
	dragDY   float64

	resizing        bool
	resizeStartX    float64
	resizeStartWide float64 // wrap width in px when the resize began
}

// NewEditor creates an editor pre-populated with the default headline block.
// Until a background image is loaded, pointer interaction and export are
// inert.
func NewEditor(fonts *FontSet) *Editor {
	return &Editor{
		fonts:       fonts,
		blocks:      []TextBlock{NewHeadlineBlock()},
		guide:       GuideNone,
		showCenters: true,
		showBorders: true,
	}
}

// LoadBackground installs a decoded background image. The canvas adopts the
// image's native resolution as its intrinsic size; stored block geometry is
// interpreted against it from the next event on.
func (e *Editor) LoadBackground(img image.Image) {
	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	drawImage(nrgba, img)
	e.bg = nrgba
	e.intrinsicW = float64(bounds.Dx())
	e.intrinsicH = float64(bounds.Dy())
}

// HasBackground reports whether a background image is loaded.
func (e *Editor) HasBackground() bool { return e.bg != nil }

// IntrinsicSize returns the canvas's intrinsic pixel dimensions.
func (e *Editor) IntrinsicSize() (w, h float64) { return e.intrinsicW, e.intrinsicH }

// SetDisplaySize records the canvas's on-screen size. Call whenever the
// image loads or the viewport resizes.
func (e *Editor) SetDisplaySize(w, h float64) {
	e.displayW = w
	e.displayH = h
}

// SetGuide selects the active safe-area preset.
func (e *Editor) SetGuide(g Guide) { e.guide = g }

// Guide returns the active safe-area preset.
func (e *Editor) Guide() Guide { return e.guide }

// SetShowCenters toggles the center alignment line overlays.
func (e *Editor) SetShowCenters(show bool) { e.showCenters = show }

// SetShowBorders toggles the border alignment line overlays.
func (e *Editor) SetShowBorders(show bool) { e.showBorders = show }

// Blocks returns a copy of the block list in z-order.
func (e *Editor) Blocks() []TextBlock {
	out := make([]TextBlock, len(e.blocks))
	copy(out, e.blocks)
	return out
}

// SetBlocks replaces the block list, clearing any selection that no longer
// resolves to a block.
func (e *Editor) SetBlocks(blocks []TextBlock) {
	e.blocks = make([]TextBlock, len(blocks))
	copy(e.blocks, blocks)
	if e.selectedIndex() < 0 {
		e.selected = ""
	}
}

// Selected returns the selected block, or nil.
func (e *Editor) Selected() *TextBlock {
	if i := e.selectedIndex(); i >= 0 {
		return &e.blocks[i]
	}
	return nil
}

// Select sets the selection to the block with the given ID, or clears it
// when the ID is unknown. At most one block is ever selected.
func (e *Editor) Select(id string) {
	e.selected = ""
	for _, b := range e.blocks {
		if b.ID == id {
			e.selected = id
			return
		}
	}
}

// AddBlock appends a new default text block on top and selects it.
func (e *Editor) AddBlock() *TextBlock {
	b := NewTextBlock()
	e.blocks = append(e.blocks, b)
	e.selected = b.ID
	return &e.blocks[len(e.blocks)-1]
}

// DeleteSelected removes the selected block.
func (e *Editor) DeleteSelected() {
	i := e.selectedIndex()
	if i < 0 {
		return
	}
	e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
	e.selected = ""
}

// DuplicateSelected clones the selected block with a positional offset,
// preserving every other property, and selects the clone.
func (e *Editor) DuplicateSelected() *TextBlock {
	i := e.selectedIndex()
	if i < 0 {
		return nil
	}
	dup := e.blocks[i]
	dup.ID = newBlockID()
	dup.AnchorX += DuplicateOffset
	dup.AnchorY += DuplicateOffset
	e.blocks = append(e.blocks, dup)
	e.selected = dup.ID
	return &e.blocks[len(e.blocks)-1]
}

// BringToFront moves the selected block to the end of the z-order.
func (e *Editor) BringToFront() {
	i := e.selectedIndex()
	if i < 0 || i == len(e.blocks)-1 {
		return
	}
	b := e.blocks[i]
	e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
	e.blocks = append(e.blocks, b)
}

// SendToBack moves the selected block to the start of the z-order.
func (e *Editor) SendToBack() {
	i := e.selectedIndex()
	if i <= 0 {
		return
	}
	b := e.blocks[i]
	e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
	e.blocks = append([]TextBlock{b}, e.blocks...)
}

// UpdateSelected applies a property edit to the selected block. The wrap
// fraction is re-clamped afterwards so edits cannot escape the valid range.
func (e *Editor) UpdateSelected(edit func(*TextBlock)) {
	i := e.selectedIndex()
	if i < 0 {
		return
	}
	edit(&e.blocks[i])
	b := &e.blocks[i]
	if b.MaxWidthFraction != 0 {
		b.MaxWidthFraction = math.Max(MinWidthFraction, math.Min(b.MaxWidthFraction, MaxWidthFraction))
	}
}

// =============================================================================
// Pointer interaction
// =============================================================================

// PointerDown begins a drag or resize from a pointer press at display
// coordinates. With no background loaded it is a no-op.
func (e *Editor) PointerDown(displayX, displayY float64) {
	if e.bg == nil {
		return
	}
	x, y := e.toIntrinsic(displayX, displayY)

	// Resize handle wins over body hits, but only for the selected block.
	if sel := e.Selected(); sel != nil {
		if rect, ok := e.blockRect(sel); ok && e.handleRect(rect).Contains(x, y) {
			e.resizing = true
			e.resizeStartX = x
			e.resizeStartWide = sel.MaxWidthPx(e.intrinsicW)
			return
		}
	}

	if id, rect, ok := e.hitTest(x, y); ok {
		e.selected = id
		e.dragDX = x - rect.Left
		e.dragDY = y - rect.Top
		e.dragging = true
		return
	}
	e.selected = ""
}

// PointerMove continues an active drag or resize. Geometry is recomputed
// against the canvas's current intrinsic size at every event.
func (e *Editor) PointerMove(displayX, displayY float64) {
	if e.bg == nil {
		return
	}
	x, y := e.toIntrinsic(displayX, displayY)

	i := e.selectedIndex()
	if i < 0 {
		return
	}
	b := &e.blocks[i]
	bounds := ActiveBounds(e.guide, e.intrinsicW, e.intrinsicH)

	if e.resizing {
		rect, ok := e.blockRect(b)
		if !ok {
			return
		}
		proposed := e.resizeStartWide + (x - e.resizeStartX)
		w := snapAndClampWidth(rect.Left, proposed, bounds)
		b.MaxWidthFraction = math.Max(MinWidthFraction, math.Min(w/e.intrinsicW, MaxWidthFraction))
		return
	}

	if e.dragging {
		rect, ok := e.blockRect(b)
		if !ok {
			return
		}
		proposed := Rect{
			Left:   x - e.dragDX,
			Top:    y - e.dragDY,
			Width:  rect.Width,
			Height: rect.Height,
		}
		left, top := snapAndClamp(proposed, bounds, e.intrinsicW, e.intrinsicH)
		b.AnchorX = AnchorForLeft(b, left, rect.Width)
		b.AnchorY = top
	}
}

// PointerUp ends any active drag or resize.
func (e *Editor) PointerUp() {
	e.dragging = false
	e.resizing = false
}

// =============================================================================
// Geometry helpers
// =============================================================================

// toIntrinsic converts display coordinates into intrinsic canvas pixels
// using the current display size. Before the display size is known the two
// spaces are treated as identical.
func (e *Editor) toIntrinsic(x, y float64) (float64, float64) {
	if e.displayW <= 0 || e.displayH <= 0 {
		return x, y
	}
	return x * e.intrinsicW / e.displayW, y * e.intrinsicH / e.displayH
}

// HandleSize returns the selection handle size, which scales with the canvas
// width so handles stay proportionally visible at any resolution.
func (e *Editor) HandleSize() float64 {
	return math.Max(8, round(e.intrinsicW*0.01))
}

// handleRect is the hit area of the bottom-right resize handle.
func (e *Editor) handleRect(rect Rect) Rect {
	size := e.HandleSize()
	return Rect{
		Left:   rect.Right() - size/2,
		Top:    rect.Bottom() - size/2,
		Width:  size,
		Height: size,
	}
}

// hitTest scans blocks from topmost to bottommost and returns the first
// whose recomputed bounding box contains the point.
func (e *Editor) hitTest(x, y float64) (id string, rect Rect, ok bool) {
	for i := len(e.blocks) - 1; i >= 0; i-- {
		r, rok := e.blockRect(&e.blocks[i])
		if rok && r.Contains(x, y) {
			return e.blocks[i].ID, r, true
		}
	}
	return "", Rect{}, false
}

func (e *Editor) blockRect(b *TextBlock) (Rect, bool) {
	rect, err := e.fonts.BlockRect(b, e.intrinsicW)
	if err != nil {
		return Rect{}, false
	}
	return rect, true
}

func (e *Editor) selectedIndex() int {
	if e.selected == "" {
		return -1
	}
	for i := range e.blocks {
		if e.blocks[i].ID == e.selected {
			return i
		}
	}
	return -1
}
