package intake

import "fmt"

// DragEvent is a drop-zone lifecycle event forwarded by the page.
type DragEvent string

const (
	DragEnter DragEvent = "enter"
	DragOver  DragEvent = "over"
	DragLeave DragEvent = "leave"
	DragDrop  DragEvent = "drop"
)

// ParseDragEvent validates an event name.
func ParseDragEvent(s string) (DragEvent, error) {
	switch e := DragEvent(s); e {
	case DragEnter, DragOver, DragLeave, DragDrop:
		return e, nil
	default:
		return "", fmt.Errorf("unknown drag event %q", s)
	}
}
