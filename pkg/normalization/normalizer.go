// Package normalization turns raw product records into comparable forms.
package normalization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/embedding"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/normalizers"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const (
	attrBrand    = "brand"
	attrCategory = "category"

	// unbrandedBlockPrefix marks block keys derived from the title.
	unbrandedBlockPrefix = "~"
)

// Config controls key derivation.
type Config struct {
	// TitlePrefixLength is how many runes of the normalized title go into the lock key.
	TitlePrefixLength int
}

func DefaultConfig() Config {
	return Config{TitlePrefixLength: 8}
}

// Normalizer is deterministic for a given embedder version.
type Normalizer struct {
	embedder embedding.Embedder
	config   Config
	logger   ectologger.Logger
}

func NewNormalizer(embedder embedding.Embedder, config Config, logger ectologger.Logger) *Normalizer {
	if config.TitlePrefixLength <= 0 {
		config.TitlePrefixLength = DefaultConfig().TitlePrefixLength
	}
	return &Normalizer{
		embedder: embedder,
		config:   config,
		logger:   logger,
	}
}

// EmbeddingVersion returns the version of the configured embedder.
func (n *Normalizer) EmbeddingVersion() string {
	return n.embedder.Version()
}

// Normalize builds the comparable form of record. It fails with a
// NormalizationError when the title is empty or has no comparable content.
func (n *Normalizer) Normalize(ctx context.Context, record *models.ProductRecord) (*models.NormalizedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "normalization.Normalizer.Normalize")
	defer span.End()

	if strings.TrimSpace(record.Title) == "" {
		return nil, pserrors.NewNormalizationError(record.ID, "title", "title is empty")
	}

	title := normalizers.Text(record.Title)
	if title == "" {
		return nil, pserrors.NewNormalizationError(record.ID, "title", "title has no comparable content")
	}

	form := models.ProductForm{
		Title:       title,
		Description: normalizers.Description(record.Description),
		Attributes:  map[string]string{},
	}

	// Raw names are visited in sorted order. When several canonicalize to the
	// same key the first non-empty value wins.
	names := make([]string, 0, len(record.Attributes))
	for name := range record.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := normalizers.AttributeKey(name)
		val := normalizers.Text(record.Attributes[name])
		if key == "" || val == "" {
			continue
		}
		switch key {
		case attrBrand:
			if form.Brand == "" {
				form.Brand = val
			}
		case attrCategory:
			if form.Category == "" {
				form.Category = val
			}
		default:
			if _, ok := form.Attributes[key]; !ok {
				form.Attributes[key] = val
			}
		}
	}

	titleTokens := strings.Fields(title)
	form.Tokens = uniqueSorted(titleTokens)

	if err := n.embed(ctx, record.ID, &form); err != nil {
		return nil, err
	}

	normalized := &models.NormalizedRecord{
		RecordID:   record.ID,
		Form:       form,
		BlockKey:   BlockKey(form.Brand, form.Category, titleTokens[0]),
		LockKey:    LockKey(form.Brand, title, n.config.TitlePrefixLength),
		ObservedAt: record.ObservedAt,
	}

	n.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": record.ID,
		"block_key": normalized.BlockKey,
		"tokens":    len(form.Tokens),
	}).Debug("Normalized product record")

	return normalized, nil
}

// Reembed recomputes form's embedding when it was produced by another model version.
// It reports whether the form changed.
func (n *Normalizer) Reembed(ctx context.Context, form *models.ProductForm) (bool, error) {
	if form.EmbeddingVersion == n.embedder.Version() && len(form.Embedding) > 0 {
		return false, nil
	}
	if err := n.embed(ctx, "", form); err != nil {
		return false, err
	}
	return true, nil
}

func (n *Normalizer) embed(ctx context.Context, recordID string, form *models.ProductForm) error {
	vec, err := n.embedder.Embed(ctx, form.Title)
	if err != nil {
		if errors.Is(err, embedding.ErrEmptyText) {
			return pserrors.NewNormalizationError(recordID, "title", err.Error())
		}
		return fmt.Errorf("failed to embed title: %w", err)
	}
	form.Embedding = vec
	form.EmbeddingVersion = n.embedder.Version()
	return nil
}

// BlockKey groups records that may refer to the same product: the brand,
// else the category, else the first title token.
func BlockKey(brand, category, firstToken string) string {
	switch {
	case brand != "":
		return brand
	case category != "":
		return category
	default:
		return unbrandedBlockPrefix + firstToken
	}
}

// LockKey is the brand plus the first prefixLen runes of the normalized title.
func LockKey(brand, title string, prefixLen int) string {
	runes := []rune(title)
	if len(runes) > prefixLen {
		runes = runes[:prefixLen]
	}
	return brand + "|" + string(runes)
}

func uniqueSorted(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
