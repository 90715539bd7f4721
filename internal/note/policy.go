package note

type Capabilities struct {
	CanFullEdit         bool
	CanToggleCheckboxes bool
	IsLocked            bool
}

// ResolveCapabilities maps a note's permission state to the interactions a
// viewer may perform. Rules are evaluated top to bottom; expiry beats mode.
func ResolveCapabilities(n Note) Capabilities {
	switch {
	case n.IsExpired:
		return Capabilities{IsLocked: true}
	case n.EditMode.OrDefault() == ModeReadOnly:
		return Capabilities{IsLocked: true}
	case n.EditMode.OrDefault() == ModeCheckboxOnly:
		return Capabilities{CanToggleCheckboxes: true}
	default:
		return Capabilities{CanFullEdit: true}
	}
}

// ViewState is what a page needs to decide which controls to draw. Editing is
// the viewer's explicit full-edit session, which is local to the viewer.
type ViewState struct {
	Capabilities
	Mode               EditMode
	Editing            bool
	ShowEditAction     bool
	EditActionDisabled bool
	EditorReadOnly     bool
	ShowCheckboxBadge  bool
	ShowReadOnlyBadge  bool
	ShowExpiredBadge   bool
}

func ResolveView(n Note, editing bool) ViewState {
	caps := ResolveCapabilities(n)
	mode := n.EditMode.OrDefault()
	editing = editing && caps.CanFullEdit
	if editing {
		caps.CanToggleCheckboxes = false
	}
	return ViewState{
		Capabilities:       caps,
		Mode:               mode,
		Editing:            editing,
		ShowEditAction:     mode == ModeFull && !editing,
		EditActionDisabled: !caps.CanFullEdit,
		EditorReadOnly:     !editing && !caps.CanToggleCheckboxes,
		ShowCheckboxBadge:  !editing && caps.CanToggleCheckboxes,
		ShowReadOnlyBadge:  !editing && mode == ModeReadOnly,
		ShowExpiredBadge:   n.IsExpired,
	}
}
