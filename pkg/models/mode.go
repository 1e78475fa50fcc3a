package models

// Mode controls whether the canvas accepts structural edits.
type Mode string

const (
	ModeEdit Mode = "edit"
	ModeView Mode = "view"
)

func (m Mode) Valid() bool {
	return m == ModeEdit || m == ModeView
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeView {
		return ModeEdit
	}

	return ModeView
}
