package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/productsync/pkg/models"
)

// fileRecord is the on-disk shape of one record. JSON files parse too since
// JSON is valid YAML.
type fileRecord struct {
	Source      string            `yaml:"source"`
	ExternalID  string            `yaml:"external_id"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Attributes  map[string]string `yaml:"attributes"`
	ObservedAt  time.Time         `yaml:"observed_at"`
}

type batchFile struct {
	Source  string       `yaml:"source"`
	Records []fileRecord `yaml:"records"`
}

// LoadFile reads a batch file. See Decode for the accepted layouts.
func LoadFile(path string) ([]*models.ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}
	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	return records, nil
}

// Decode accepts either a bare list of records or a document with a
// "records" list and an optional default "source" for entries without one.
func Decode(r io.Reader) ([]*models.ProductRecord, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var file batchFile
	switch root := doc.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&file.Records); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		if err := root.Decode(&file); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("line %d: expected a list of records or a mapping with 'records'", root.Line)
	}

	records := make([]*models.ProductRecord, 0, len(file.Records))
	for _, fr := range file.Records {
		source := fr.Source
		if source == "" {
			source = file.Source
		}
		records = append(records, &models.ProductRecord{
			Source:      source,
			ExternalID:  fr.ExternalID,
			Title:       fr.Title,
			Description: fr.Description,
			Attributes:  models.Attributes(fr.Attributes),
			ObservedAt:  fr.ObservedAt,
		})
	}
	return records, nil
}
