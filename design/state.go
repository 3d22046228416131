package design

import (
	"cardstudio/core"

	"github.com/sirupsen/logrus"
)

const DefaultBackground = "#ffffff"

// State is the editable state of one design session: the items in paint
// order, the background and the current selection. A State owns its items
// exclusively and is meant to be used by a single session at a time; it is
// not safe for concurrent use.
//
// The selection always names an item present in Items or is nil.
type State struct {
	Items           []core.Item
	Background      string
	BackgroundImage *string
	Selected        *string
}

func NewState() *State {
	return &State{
		Items:      []core.Item{},
		Background: DefaultBackground,
	}
}

// FromDesign hydrates a state from a saved design. The state gets its own
// copy of the items.
func FromDesign(d *core.Design) (*State, error) {
	return hydrate(d.Items, d.Background, d.SelectedID)
}

// FromInvitation hydrates a state from the snapshot carried by an invitation,
// for example to start a new design from one that was already sent.
func FromInvitation(inv *core.Invitation) (*State, error) {
	return hydrate(inv.Items, inv.Background, nil)
}

func hydrate(items []core.Item, bg core.Background, selected *string) (*State, error) {
	owned, err := Clone(items)
	if err != nil {
		return nil, err
	}
	if owned == nil {
		owned = []core.Item{}
	}

	s := &State{
		Items:           owned,
		Background:      bg.Color,
		BackgroundImage: copyString(bg.Image),
	}
	if s.Background == "" {
		s.Background = DefaultBackground
	}
	s.Select(selected)
	return s, nil
}

// SetItems replaces the whole item sequence. A selection that no longer
// matches an item is cleared.
func (s *State) SetItems(items []core.Item) {
	if items == nil {
		items = []core.Item{}
	}
	s.Items = items
	if s.Selected != nil && indexOf(s.Items, *s.Selected) < 0 {
		s.Selected = nil
	}
}

func (s *State) SetBackground(color string) {
	s.Background = color
}

// SetBackgroundImage sets or, with nil, clears the background image.
func (s *State) SetBackgroundImage(image *string) {
	s.BackgroundImage = copyString(image)
}

// Select changes the selected identity. nil clears the selection; an
// identity that matches no item also clears it.
func (s *State) Select(id *string) {
	if id == nil {
		s.Selected = nil
		return
	}
	if indexOf(s.Items, *id) < 0 {
		logrus.WithField("item_id", *id).Warn("Selection target not found, clearing selection")
		s.Selected = nil
		return
	}
	s.Selected = copyString(id)
}

// SelectedItem returns the selected item, if any.
func (s *State) SelectedItem() (core.Item, bool) {
	if s.Selected == nil {
		return core.Item{}, false
	}
	idx := indexOf(s.Items, *s.Selected)
	if idx < 0 {
		return core.Item{}, false
	}
	return s.Items[idx], true
}

// AddItem appends item on top of the paint order.
func (s *State) AddItem(item core.Item) {
	s.Items = append(s.Items, item)
}

// AddText appends a default text item and returns it.
func (s *State) AddText() core.Item {
	item := NewItem(core.KindText, "")
	s.AddItem(item)
	return item
}

// RemoveSelected removes the selected item and clears the selection. It
// reports whether an item was removed; with nothing selected it is a no-op.
func (s *State) RemoveSelected() bool {
	if s.Selected == nil {
		return false
	}
	idx := indexOf(s.Items, *s.Selected)
	s.Selected = nil
	if idx < 0 {
		return false
	}

	items := make([]core.Item, 0, len(s.Items)-1)
	items = append(items, s.Items[:idx]...)
	items = append(items, s.Items[idx+1:]...)
	s.Items = items
	return true
}

// UpdateItem patches the item identified by id, see Patch.
func (s *State) UpdateItem(id string, patch map[string]any) error {
	items, err := Patch(s.Items, id, patch)
	if err != nil {
		return err
	}
	s.Items = items
	return nil
}

// Snapshot returns a deep copy of the items and background, ready to be
// persisted or frozen into an invitation.
func (s *State) Snapshot() ([]core.Item, core.Background, error) {
	items, err := Clone(s.Items)
	if err != nil {
		return nil, core.Background{}, err
	}
	if items == nil {
		items = []core.Item{}
	}
	return items, core.Background{Color: s.Background, Image: copyString(s.BackgroundImage)}, nil
}

// ApplyTo writes the state into d, replacing its items, background and selection.
func (s *State) ApplyTo(d *core.Design) error {
	items, bg, err := s.Snapshot()
	if err != nil {
		return err
	}
	d.Items = items
	d.Background = bg
	d.SelectedID = copyString(s.Selected)
	return nil
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
