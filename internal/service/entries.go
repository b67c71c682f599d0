package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/store"
)

// ReceiptInput is the editable content of a receipt.
type ReceiptInput struct {
	Title         string   `json:"title"`
	DecisionType  string   `json:"decision_type"`
	Context       string   `json:"context"`
	Assumptions   string   `json:"assumptions"`
	Constraints   string   `json:"constraints"`
	Emotions      []string `json:"emotions"`
	Confidence    *int     `json:"confidence"`
	ChangeMind    string   `json:"change_mind"`
	Tags          []string `json:"tags"`
	LinkURL       string   `json:"link_url"`
	LocationLabel string   `json:"location_label"`
}

func (in ReceiptInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	return nil
}

// apply copies the input onto r, clamping confidence and defaulting it to
// journal.DefaultConfidence.
func (in ReceiptInput) apply(r *journal.Receipt) {
	confidence := journal.DefaultConfidence
	if in.Confidence != nil {
		confidence = journal.ClampConfidence(*in.Confidence)
	}
	r.Title = strings.TrimSpace(in.Title)
	r.DecisionType = in.DecisionType
	r.Context = in.Context
	r.Assumptions = in.Assumptions
	r.Constraints = in.Constraints
	r.Emotions = nonNil(in.Emotions)
	r.Confidence = journal.Intn(confidence)
	r.ChangeMind = in.ChangeMind
	r.Tags = nonNil(in.Tags)
	r.LinkURL = in.LinkURL
	r.LocationLabel = in.LocationLabel
}

// MomentInput is the editable content of a moment.
type MomentInput struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Note        string   `json:"note"`
	WhyMattered string   `json:"why_mattered"`
	Tags        []string `json:"tags"`
}

func (in MomentInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	return nil
}

func (in MomentInput) apply(m *journal.Moment) {
	m.Title = strings.TrimSpace(in.Title)
	m.Category = in.Category
	m.Note = in.Note
	m.WhyMattered = in.WhyMattered
	m.Tags = nonNil(in.Tags)
}

// CreateReceipt validates and stores a new receipt.
func (s *Service) CreateReceipt(ctx context.Context, userID string, in ReceiptInput) (journal.Receipt, error) {
	if err := requireUser(userID); err != nil {
		return journal.Receipt{}, err
	}
	if err := in.validate(); err != nil {
		return journal.Receipt{}, err
	}

	now := s.clock.Now()
	r := journal.Receipt{ID: s.newID(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	in.apply(&r)
	if err := s.store.CreateReceipt(ctx, r); err != nil {
		return journal.Receipt{}, fmt.Errorf("creating receipt: %w", err)
	}

	s.publish(ctx, events.ReceiptCreated, userID, map[string]string{
		"receipt_id":    r.ID,
		"decision_type": r.DecisionType,
	})
	return r, nil
}

// GetReceipt returns one receipt.
func (s *Service) GetReceipt(ctx context.Context, userID, id string) (journal.Receipt, error) {
	return s.store.GetReceipt(ctx, userID, id)
}

// UpdateReceipt replaces the editable fields of a receipt.
func (s *Service) UpdateReceipt(ctx context.Context, userID, id string, in ReceiptInput) (journal.Receipt, error) {
	if err := in.validate(); err != nil {
		return journal.Receipt{}, err
	}
	r, err := s.store.GetReceipt(ctx, userID, id)
	if err != nil {
		return journal.Receipt{}, err
	}
	in.apply(&r)
	r.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateReceipt(ctx, r); err != nil {
		return journal.Receipt{}, fmt.Errorf("updating receipt: %w", err)
	}
	return r, nil
}

// DeleteReceipt removes a receipt.
func (s *Service) DeleteReceipt(ctx context.Context, userID, id string) error {
	return s.store.DeleteReceipt(ctx, userID, id)
}

// ListReceipts returns the user's receipts, newest first.
func (s *Service) ListReceipts(ctx context.Context, userID string) ([]journal.Receipt, error) {
	return s.store.ListReceipts(ctx, userID, store.EntryFilter{})
}

// CreateMoment validates and stores a new moment.
func (s *Service) CreateMoment(ctx context.Context, userID string, in MomentInput) (journal.Moment, error) {
	if err := requireUser(userID); err != nil {
		return journal.Moment{}, err
	}
	if err := in.validate(); err != nil {
		return journal.Moment{}, err
	}

	now := s.clock.Now()
	m := journal.Moment{ID: s.newID(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	in.apply(&m)
	if err := s.store.CreateMoment(ctx, m); err != nil {
		return journal.Moment{}, fmt.Errorf("creating moment: %w", err)
	}

	s.publish(ctx, events.MomentCreated, userID, map[string]string{
		"moment_id": m.ID,
		"category":  m.Category,
	})
	return m, nil
}

// GetMoment returns one moment.
func (s *Service) GetMoment(ctx context.Context, userID, id string) (journal.Moment, error) {
	return s.store.GetMoment(ctx, userID, id)
}

// UpdateMoment replaces the editable fields of a moment.
func (s *Service) UpdateMoment(ctx context.Context, userID, id string, in MomentInput) (journal.Moment, error) {
	if err := in.validate(); err != nil {
		return journal.Moment{}, err
	}
	m, err := s.store.GetMoment(ctx, userID, id)
	if err != nil {
		return journal.Moment{}, err
	}
	in.apply(&m)
	m.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateMoment(ctx, m); err != nil {
		return journal.Moment{}, fmt.Errorf("updating moment: %w", err)
	}
	return m, nil
}

// DeleteMoment removes a moment.
func (s *Service) DeleteMoment(ctx context.Context, userID, id string) error {
	return s.store.DeleteMoment(ctx, userID, id)
}

// ListMoments returns the user's moments, newest first.
func (s *Service) ListMoments(ctx context.Context, userID string) ([]journal.Moment, error) {
	return s.store.ListMoments(ctx, userID, store.EntryFilter{})
}

// Timeline item types.
const (
	ItemReceipt = "receipt"
	ItemMoment  = "moment"
)

// TimelineFilter narrows the timeline. DecisionType only applies to
// receipts and Category only to moments.
type TimelineFilter struct {
	Type         string
	Tag          string
	Category     string
	DecisionType string
}

// TimelineItem is one receipt or moment on the merged timeline.
type TimelineItem struct {
	ItemType  string           `json:"item_type"`
	CreatedAt time.Time        `json:"created_at"`
	Receipt   *journal.Receipt `json:"receipt,omitempty"`
	Moment    *journal.Moment  `json:"moment,omitempty"`
}

// Timeline merges receipts and moments, newest first.
func (s *Service) Timeline(ctx context.Context, userID string, f TimelineFilter) ([]TimelineItem, error) {
	if f.Type != "" && f.Type != ItemReceipt && f.Type != ItemMoment {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrInvalid, f.Type)
	}

	items := []TimelineItem{}
	if f.Type == "" || f.Type == ItemReceipt {
		receipts, err := s.store.ListReceipts(ctx, userID, store.EntryFilter{
			Tag:          f.Tag,
			DecisionType: f.DecisionType,
		})
		if err != nil {
			return nil, fmt.Errorf("listing receipts: %w", err)
		}
		for i := range receipts {
			items = append(items, TimelineItem{ItemType: ItemReceipt, CreatedAt: receipts[i].CreatedAt, Receipt: &receipts[i]})
		}
	}
	if f.Type == "" || f.Type == ItemMoment {
		moments, err := s.store.ListMoments(ctx, userID, store.EntryFilter{
			Tag:      f.Tag,
			Category: f.Category,
		})
		if err != nil {
			return nil, fmt.Errorf("listing moments: %w", err)
		}
		for i := range moments {
			items = append(items, TimelineItem{ItemType: ItemMoment, CreatedAt: moments[i].CreatedAt, Moment: &moments[i]})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
