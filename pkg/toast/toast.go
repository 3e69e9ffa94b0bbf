package toast

// Level classifies a toast for the rendering layer.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Props describes a toast to display. All fields are optional; the store
// treats Title, Description and Data as opaque display payloads and never
// inspects them.
type Props struct {
	Title       string
	Description string
	Level       Level

	// Data carries caller-supplied display properties through the store
	// unchanged (action labels, complaint ids, anything the UI needs).
	Data map[string]any

	// OnOpenChange is invoked by the rendering layer when the toast's
	// visibility changes. The store arranges for a close (open=false) to
	// dismiss the toast before the caller's callback runs.
	OnOpenChange func(open bool)
}

// Patch is a partial update applied to an existing toast. Nil fields are
// left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Level       *Level
	Data        map[string]any
}

// Toast is a single notification held by the store.
type Toast struct {
	// ID is assigned at creation and never changes.
	ID string

	Title       string
	Description string
	Level       Level
	Data        map[string]any

	// Open is true while the toast is visible. Dismissal sets it false;
	// it is never set back to true.
	Open bool

	// OnOpenChange is the visibility callback handed to the rendering
	// layer. Closing through it dismisses the toast.
	OnOpenChange func(open bool)
}

// State is an immutable snapshot of the store. Toasts are ordered newest
// first and the slice never exceeds the store's limit.
type State struct {
	Toasts []Toast
}

// Find returns the toast with the given id, if present.
func (s State) Find(id string) (Toast, bool) {
	for _, t := range s.Toasts {
		if t.ID == id {
			return t, true
		}
	}
	return Toast{}, false
}

// Handle is returned by Toast and binds update/dismiss operations to a
// single toast id. Handles stay valid after the toast is gone; operations
// on a removed toast are no-ops.
type Handle struct {
	// ID is the id of the toast this handle controls.
	ID string

	store *Store
}

// Update applies a partial update to the toast. No-op if the toast has
// already been removed.
func (h Handle) Update(p Patch) {
	h.store.update(h.ID, p)
}

// Dismiss closes the toast and schedules its removal.
func (h Handle) Dismiss() {
	h.store.Dismiss(h.ID)
}

// Success shows a success toast.
//
//	store.Success("Changes saved!")
func (s *Store) Success(message string) Handle {
	return s.Toast(Props{Level: LevelSuccess, Description: message})
}

// Error shows an error toast.
//
//	store.Error("Failed to update complaint")
func (s *Store) Error(message string) Handle {
	return s.Toast(Props{Level: LevelError, Description: message})
}

// Warning shows a warning toast.
func (s *Store) Warning(message string) Handle {
	return s.Toast(Props{Level: LevelWarning, Description: message})
}

// Info shows an info toast.
func (s *Store) Info(message string) Handle {
	return s.Toast(Props{Level: LevelInfo, Description: message})
}

// WithTitle shows a toast with a title and message.
//
//	store.WithTitle(toast.LevelSuccess, "Settings", "Your changes have been saved.")
func (s *Store) WithTitle(level Level, title, message string) Handle {
	return s.Toast(Props{Level: level, Title: title, Description: message})
}
