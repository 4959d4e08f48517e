package orders

import (
	"fmt"
	"time"
)

// Status is the broker-reported lifecycle state of an order.
type Status string

const (
	PendingSubmit Status = "PendingSubmit"
	PendingCancel Status = "PendingCancel"
	PreSubmitted  Status = "PreSubmitted"
	Submitted     Status = "Submitted"
	ApiCancelled  Status = "ApiCancelled"
	Cancelled     Status = "Cancelled"
	Filled        Status = "Filled"
	Inactive      Status = "Inactive"
)

// Done reports whether the order has left the book.
func (s Status) Done() bool {
	return s == Filled || s == Cancelled || s == ApiCancelled
}

// Update is published on PORTFOLIO_ORDERS once an order status has been
// applied. Instrument is zero when neither the update nor the stored order
// carried one. Active is a copy of the remaining active orders.
type Update struct {
	Order      ActiveOrder
	Instrument int
	Active     map[int]ActiveOrder
}

// ActiveOrder is the broker's view of a working order. Optional fields are
// pointers; nil means the update did not carry the field.
type ActiveOrder struct {
	PermID    int
	ClientID  int
	OrderID   int
	ParentID  int
	Status    Status
	Timestamp time.Time

	Account       *string
	Instrument    *int
	SecType       *string
	Exchange      *string
	Action        *string
	OrderType     *string
	TotalQty      *float64
	CashQty       *float64
	LmtPrice      *float64
	AuxPrice      *float64
	Filled        *float64
	Remaining     *float64
	AvgFillPrice  *float64
	LastFillPrice *float64
	WhyHeld       *string
	MktCapPrice   *float64
}

// Merge copies every field supplied by update onto o.
func (o *ActiveOrder) Merge(update ActiveOrder) {
	if update.ClientID != 0 {
		o.ClientID = update.ClientID
	}
	if update.OrderID != 0 {
		o.OrderID = update.OrderID
	}
	if update.ParentID != 0 {
		o.ParentID = update.ParentID
	}
	if update.Status != "" {
		o.Status = update.Status
	}
	if !update.Timestamp.IsZero() {
		o.Timestamp = update.Timestamp
	}

	mergeP(&o.Account, update.Account)
	mergeP(&o.Instrument, update.Instrument)
	mergeP(&o.SecType, update.SecType)
	mergeP(&o.Exchange, update.Exchange)
	mergeP(&o.Action, update.Action)
	mergeP(&o.OrderType, update.OrderType)
	mergeP(&o.TotalQty, update.TotalQty)
	mergeP(&o.CashQty, update.CashQty)
	mergeP(&o.LmtPrice, update.LmtPrice)
	mergeP(&o.AuxPrice, update.AuxPrice)
	mergeP(&o.Filled, update.Filled)
	mergeP(&o.Remaining, update.Remaining)
	mergeP(&o.AvgFillPrice, update.AvgFillPrice)
	mergeP(&o.LastFillPrice, update.LastFillPrice)
	mergeP(&o.WhyHeld, update.WhyHeld)
	mergeP(&o.MktCapPrice, update.MktCapPrice)
}

// InstrumentID returns the instrument and whether it is known.
func (o ActiveOrder) InstrumentID() (int, bool) {
	if o.Instrument == nil {
		return 0, false
	}
	return *o.Instrument, true
}

// Clone returns a deep copy so readers on other goroutines cannot observe
// later merges.
func (o ActiveOrder) Clone() ActiveOrder {
	c := o
	c.Account = cloneP(o.Account)
	c.Instrument = cloneP(o.Instrument)
	c.SecType = cloneP(o.SecType)
	c.Exchange = cloneP(o.Exchange)
	c.Action = cloneP(o.Action)
	c.OrderType = cloneP(o.OrderType)
	c.TotalQty = cloneP(o.TotalQty)
	c.CashQty = cloneP(o.CashQty)
	c.LmtPrice = cloneP(o.LmtPrice)
	c.AuxPrice = cloneP(o.AuxPrice)
	c.Filled = cloneP(o.Filled)
	c.Remaining = cloneP(o.Remaining)
	c.AvgFillPrice = cloneP(o.AvgFillPrice)
	c.LastFillPrice = cloneP(o.LastFillPrice)
	c.WhyHeld = cloneP(o.WhyHeld)
	c.MktCapPrice = cloneP(o.MktCapPrice)
	return c
}

func (o ActiveOrder) String() string {
	inst := "-"
	if id, ok := o.InstrumentID(); ok {
		inst = fmt.Sprint(id)
	}
	return fmt.Sprintf("perm=%d instrument=%s status=%s filled=%s remaining=%s",
		o.PermID, inst, o.Status, fmtF(o.Filled), fmtF(o.Remaining))
}

// Ptr returns a pointer to v, for building partial updates.
func Ptr[T any](v T) *T { return &v }

func cloneP[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func mergeP[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func fmtF(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}
