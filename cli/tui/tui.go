package tui

import "fmt"

// viewWatch is the only TUI view type this CLI currently ships: a live
// progress view for a scheduled root workflow.
const viewWatch = "watch"

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	wp, ok := data.(*WatchParams)
	if !ok {
		return fmt.Errorf("tui: watch view requires a *WatchParams payload, got %T", data)
	}
	return RunWatch(wp)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return viewType == viewWatch
}

// SupportedTUIViews returns the list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{viewWatch}
}
