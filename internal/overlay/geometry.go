package overlay

// Rect is a viewport-relative bounding box as reported by the browser.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a scroll offset.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position places an anchor in document coordinates.
type Position struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PositionFor converts a viewport rect to document space by adding the
// current scroll offset.
func PositionFor(rect Rect, scroll Point) Position {
	return Position{
		Top:    rect.Y + scroll.Y,
		Left:   rect.X + scroll.X,
		Width:  rect.Width,
		Height: rect.Height,
	}
}
