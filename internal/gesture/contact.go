package gesture

import "time"

// ContactID identifies one finger (pointer) on the response pad.
type ContactID int64

// contactSlot tracks the single contact being classified.
type contactSlot struct {
	active bool
	id     ContactID
	down   time.Time
	last   time.Time
}

// Down starts tracking a contact. It reports false, and the event is
// ignored, when another contact is already being tracked.
func (c *Classifier) Down(id ContactID, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contact.active {
		return false
	}
	c.contact = contactSlot{active: true, id: id, down: at, last: at}
	return true
}

// Move records activity of the tracked contact; it only advances the last
// known event time used by Cancel.
func (c *Classifier) Move(id ContactID, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contact.active && c.contact.id == id && at.After(c.contact.last) {
		c.contact.last = at
	}
}

// Up completes the press of the tracked contact. Releases of untracked
// contacts are ignored.
func (c *Classifier) Up(id ContactID, at time.Time) bool {
	down, ok := c.release(id, &at)
	if !ok {
		return false
	}
	c.PressCycle(down, at)
	return true
}

// Cancel handles a contact lost without a clean release: the press is
// classified as though it ended at the contact's last known event time, so
// the slot never stays half-open.
func (c *Classifier) Cancel(id ContactID) bool {
	var up time.Time
	down, ok := c.release(id, &up)
	if !ok {
		return false
	}
	c.PressCycle(down, up)
	return true
}

// release frees the slot. When *up is zero it is filled with the last known
// event time.
func (c *Classifier) release(id ContactID, up *time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.contact.active || c.contact.id != id {
		return time.Time{}, false
	}
	if up.IsZero() {
		*up = c.contact.last
	}
	down := c.contact.down
	c.contact = contactSlot{}
	return down, true
}
