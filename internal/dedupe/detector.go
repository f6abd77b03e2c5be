// Package dedupe flags tickets that repeat a recent request from the same
// customer.
package dedupe

import (
	"context"
	"time"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// Defaults applied when configuration leaves a knob at zero.
const (
	DefaultThreshold  = 0.85
	DefaultWindowSize = 20
	DefaultWindowTTL  = 72 * time.Hour
)

// Detector compares a ticket against its customer's recent window.
type Detector struct {
	history   History
	threshold float64
	nowFunc   func() time.Time
}

// NewDetector creates a Detector. A threshold outside (0,1] falls back to
// DefaultThreshold.
func NewDetector(history History, threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{history: history, threshold: threshold, nowFunc: time.Now}
}

// Threshold returns the similarity at or above which tickets match.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Check records the ticket in its customer's window and returns the most
// similar earlier ticket scoring at least the threshold. Tickets with no
// customer identity are never compared.
func (d *Detector) Check(ctx context.Context, ticket model.Ticket) (*model.DuplicateRef, error) {
	customer := ticket.CustomerKey()
	if customer == "" {
		return nil, nil
	}

	fp := NewFingerprint(ticket.Text())
	prior, err := d.history.Observe(ctx, customer, Entry{
		TicketID:    ticket.ID,
		Fingerprint: fp,
		At:          d.nowFunc(),
	})
	if err != nil {
		return nil, err
	}

	var best *model.DuplicateRef
	for _, e := range prior {
		if e.TicketID == ticket.ID {
			continue
		}
		sim := Similarity(fp, e.Fingerprint)
		if sim < d.threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &model.DuplicateRef{TicketID: e.TicketID, Similarity: sim}
		}
	}
	return best, nil
}
