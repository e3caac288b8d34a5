// Package pipeline turns claimed queue work into index writes.
//
// For each claimed record the processor re-fetches holdings and items, runs the
// bound-with deduplicator, the item and availability summaries and the multivolume
// classifier, builds a search document and writes it when its hash changed.
// Queue rows are deleted only after the index accepted the write.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"holdings-sync/feature/availability"
	"holdings-sync/feature/boundwith"
	"holdings-sync/feature/callnumber"
	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/multivol"
	"holdings-sync/feature/review"
)

const (
	// OnlineLocation is the location facet value of records with online access.
	OnlineLocation = "Online"
	// DiscrepancyFlag marks a review whose multivolume conclusion changed.
	DiscrepancyFlag = "MULTIVOL_DISCREPANCY"
)

// Document is the search document of one record.
type Document struct {
	ID             string                `json:"id"`
	Title          string                `json:"title,omitempty"`
	Format         string                `json:"format,omitempty"`
	Available      *bool                 `json:"available,omitempty"`
	Online         bool                  `json:"online"`
	Location       []string              `json:"location,omitempty"`
	Availability   *availability.Summary `json:"availability"`
	Holdings       []HoldingView         `json:"holdings,omitempty"`
	CallNumber     string                `json:"callnumber,omitempty"`
	CallNumberSort string                `json:"callnumber_sort,omitempty"`
	Classification []string              `json:"classification,omitempty"`
	Categories     []string              `json:"categories,omitempty"`
	Multivol       bool                  `json:"multivol"`
	Flags          []string              `json:"flags,omitempty"`
}

// DocumentID implements reconcile.Document.
func (d *Document) DocumentID() string {
	return d.ID
}

// HoldingView is the compact form of a holding stored in the document.
type HoldingView struct {
	ID           string              `json:"id"`
	Location     string              `json:"location,omitempty"`
	Call         string              `json:"call,omitempty"`
	Online       bool                `json:"online,omitempty"`
	OrderNote    string              `json:"order,omitempty"`
	Items        *models.ItemSummary `json:"items,omitempty"`
	Descriptions []string            `json:"holdings,omitempty"`
}

// Outcome is everything learned while building a record's document.
type Outcome struct {
	RecordID string `json:"record_id"`
	// Doc is nil when the record must be removed from the index.
	Doc  *Document `json:"document,omitempty"`
	Hash string    `json:"hash,omitempty"`

	BoundWith []boundwith.Outcome `json:"bound_with,omitempty"`
	Multivol  multivol.Result     `json:"multivol"`
	// Discrepancy is set when the multivolume conclusion differs from the stored one.
	Discrepancy bool `json:"discrepancy,omitempty"`
	// Masters are the records whose items this record's holdings are bound into.
	Masters []string `json:"masters,omitempty"`
	// Discharged is set when an item of the record was recently returned.
	Discharged bool `json:"discharged,omitempty"`
}

// NeedsReview reports whether the outcome is ambiguous enough to archive for review.
func (o *Outcome) NeedsReview() bool {
	if o.Doc == nil {
		return false
	}
	if o.Discrepancy || o.Multivol.Flags.NeedsReview() {
		return true
	}
	for _, bw := range o.BoundWith {
		if bw.Flags.NeedsReview() {
			return true
		}
	}
	return false
}

// Review returns the archive entry of the outcome.
func (o *Outcome) Review(previous *bool, now time.Time) review.Entry {
	e := review.Entry{
		RecordID:   o.RecordID,
		Previous:   previous,
		Multivol:   o.Multivol.Multivol(),
		RecordedAt: now,
	}
	if o.Doc != nil {
		e.Title = o.Doc.Title
		e.Flags = o.Doc.Flags
	}
	if o.Discrepancy {
		e.Flags = append(append([]string(nil), e.Flags...), DiscrepancyFlag)
	}
	for _, bw := range o.BoundWith {
		if bw.Flags != 0 {
			e.Holdings = append(e.Holdings, review.HoldingNote{HoldingID: bw.HoldingID, Flags: bw.Flags.Names()})
		}
	}
	return e
}

// Builder derives search documents from records. It is immutable and safe for concurrent use.
type Builder struct {
	prefixes   []string
	classifier *callnumber.Classifier
	categories []callnumber.Category
}

// NewBuilder creates a builder. Nil arguments select the defaults.
func NewBuilder(prefixes []string, classifier *callnumber.Classifier, categories []callnumber.Category) *Builder {
	if prefixes == nil {
		prefixes = callnumber.DefaultPrefixes
	}
	if classifier == nil {
		classifier = callnumber.NewClassifier(callnumber.DefaultRanges())
	}
	if categories == nil {
		categories = callnumber.DefaultCategories()
	}
	return &Builder{prefixes: prefixes, classifier: classifier, categories: categories}
}

// Build reconciles a record into its document. The record's holdings and items are
// modified in place. previousMultivol is the conclusion stored by the last confirmed write.
func (b *Builder) Build(rec *models.Record, previousMultivol *bool) (*Outcome, error) {
	out := &Outcome{RecordID: rec.ID}
	if !rec.Active {
		return out, nil
	}

	out.Masters = boundwith.Masters(rec.Holdings)
	out.BoundWith = boundwith.DedupeHoldings(rec.Holdings, rec.Items)

	byHolding := models.ItemsByHolding(rec.Items)
	for _, h := range rec.Holdings {
		if h == nil {
			continue
		}
		if availability.SummarizeItems(h, byHolding[h.ID]) {
			out.Discharged = true
		}
	}

	summary := availability.Summarize(rec.Holdings)

	out.Multivol = multivol.Classify(rec.Bib.Format, rec.Bib.PhysicalDescription, rec.Bib.HasSupplement, rec.Holdings, rec.Items)
	if previousMultivol != nil && *previousMultivol != out.Multivol.Multivol() {
		out.Discrepancy = true
	}

	doc := &Document{
		ID:           rec.ID,
		Title:        rec.Bib.Title,
		Format:       rec.Bib.Format,
		Available:    summary.Available,
		Online:       summary.Online,
		Location:     summary.Locations(),
		Availability: summary,
		Multivol:     out.Multivol.Multivol(),
	}
	if summary.Online {
		doc.Location = append(doc.Location, OnlineLocation)
	}

	for _, h := range rec.Holdings {
		if h == nil || !h.Active {
			continue
		}
		doc.Holdings = append(doc.Holdings, HoldingView{
			ID:           h.ID,
			Location:     h.Location.DisplayName(),
			Call:         h.Call,
			Online:       h.IsOnline(),
			OrderNote:    h.OrderNote,
			Items:        h.ItemSummary,
			Descriptions: h.Descriptions,
		})
		if doc.CallNumber == "" && h.Call != "" && !h.IsOnline() {
			doc.CallNumber = h.Call
		}
	}

	if doc.CallNumber != "" {
		doc.CallNumberSort = callnumber.SortForm(doc.CallNumber, b.prefixes)
		doc.Classification = b.classifier.Labels(doc.CallNumberSort)
		doc.Categories = callnumber.Categories(doc.CallNumberSort, b.categories)
	}

	doc.Flags = flagNames(out)

	hash, err := Hash(doc)
	if err != nil {
		return nil, err
	}
	out.Doc = doc
	out.Hash = hash
	return out, nil
}

func flagNames(o *Outcome) []string {
	set := make(map[string]struct{})
	for _, bw := range o.BoundWith {
		for _, n := range bw.Flags.Names() {
			set[n] = struct{}{}
		}
	}
	for _, n := range o.Multivol.Flags.Names() {
		set[n] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Hash returns the hex SHA-256 of the document's JSON encoding.
func Hash(doc *Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
