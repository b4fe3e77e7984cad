package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// recordNamespace scopes deterministic record ids.
var recordNamespace = uuid.MustParse("6f1c2f0e-8a53-4d0b-9a57-7d3c1b4f2e10")

// ProductRecord is a raw product observation from one source. Immutable once ingested.
type ProductRecord struct {
	ID          string     `json:"id" db:"id"`
	Source      string     `json:"source" db:"source" validate:"required,max=255"`
	ExternalID  string     `json:"external_id" db:"external_id" validate:"required,max=255"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Attributes  Attributes `json:"attributes,omitempty" db:"attributes"`
	ObservedAt  time.Time  `json:"observed_at" db:"observed_at"`
	Fingerprint string     `json:"fingerprint,omitempty" db:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// RecordID returns the deterministic id for a (source, external id) pair.
func RecordID(source, externalID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(source+":"+externalID)).String()
}

// FingerprintData returns the content that identifies a record version.
func (r *ProductRecord) FingerprintData() map[string]any {
	attrs := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return map[string]any{
		"source":      r.Source,
		"external_id": r.ExternalID,
		"title":       r.Title,
		"description": r.Description,
		"attributes":  attrs,
	}
}

// Attributes maps attribute names to raw values.
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(a))
}

func (a *Attributes) Scan(src any) error {
	return scanJSON(src, a)
}

// ProductForm is the comparable, normalized representation of a product.
// Catalog entities keep one as their representative form.
type ProductForm struct {
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Brand            string            `json:"brand,omitempty"`
	Category         string            `json:"category,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	Tokens           []string          `json:"tokens,omitempty"`
	Embedding        []float64         `json:"embedding,omitempty"`
	EmbeddingVersion string            `json:"embedding_version,omitempty"`
}

func (f ProductForm) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *ProductForm) Scan(src any) error {
	return scanJSON(src, f)
}

// Clone returns a deep copy.
func (f ProductForm) Clone() ProductForm {
	out := f
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	out.Tokens = append([]string(nil), f.Tokens...)
	out.Embedding = append([]float64(nil), f.Embedding...)
	return out
}

// NormalizedRecord is the pipeline-owned derivative of a ProductRecord.
// It is recomputed on every ingestion and never persisted.
type NormalizedRecord struct {
	RecordID   string
	Form       ProductForm
	BlockKey   string
	LockKey    string
	ObservedAt time.Time
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
