package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a client-side UUID so inserts do not depend on gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error              { ensureID(&u.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error             { ensureID(&o.ID); return nil }
func (h *OrderHistory) BeforeCreate(*gorm.DB) error      { ensureID(&h.ID); return nil }
func (n *OrderNote) BeforeCreate(*gorm.DB) error         { ensureID(&n.ID); return nil }
func (n *OrderNotification) BeforeCreate(*gorm.DB) error { ensureID(&n.ID); return nil }
func (c *Chat) BeforeCreate(*gorm.DB) error              { ensureID(&c.ID); return nil }
func (m *Message) BeforeCreate(*gorm.DB) error           { ensureID(&m.ID); return nil }
func (s *SupportCase) BeforeCreate(*gorm.DB) error       { ensureID(&s.ID); return nil }
func (a *AdminLog) BeforeCreate(*gorm.DB) error          { ensureID(&a.ID); return nil }
func (c *Change) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error      { ensureID(&n.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error       { ensureID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error         { ensureID(&d.ID); return nil }
