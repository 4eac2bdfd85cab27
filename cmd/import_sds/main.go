// Command import_sds walks a directory of safety data sheet PDFs and
// registers the chemicals they describe as zero-stock catalog entries.
// Existing items are matched by CAS number and name so re-running the
// importer is safe.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"labstock/internal/config"
	"labstock/internal/db"
	"labstock/internal/ledger"
	"labstock/internal/service"
)

var (
	casPattern        = regexp.MustCompile(`\b\d{2,7}-\d{2}-\d\b`)
	productLabels     = regexp.MustCompile(`(?i)(?:product\s+name|product\s+identifier|trade\s+name|产品名称|化学品名称)\s*[:：]\s*(.+)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const defaultCategory = "化学试剂"

type catalogEntry struct {
	Name      string
	CASNumber string
	Source    string
}

type importSummary struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

func main() {
	dir := "sds"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := run(dir); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("sds directory must not be empty")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("locate sds directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	svc := service.New(database, ledger.Thresholds{
		Low:     cfg.Inventory.LowThreshold,
		Warning: cfg.Inventory.WarningThreshold,
	})

	ctx := context.Background()
	summary := importSummary{}

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		item, err := readSheet(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			summary.Failed++
			return nil
		}

		outcome, err := upsertCatalogEntry(ctx, svc, item)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			summary.Failed++
			return nil
		}

		switch outcome {
		case outcomeCreated:
			summary.Created++
		case outcomeUpdated:
			summary.Updated++
		default:
			summary.Skipped++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}

	fmt.Fprintf(os.Stdout, "SDS import: %d created, %d updated, %d skipped, %d failed\n",
		summary.Created, summary.Updated, summary.Skipped, summary.Failed)
	return nil
}

func readSheet(path string) (catalogEntry, error) {
	text, err := extractText(path)
	if err != nil {
		return catalogEntry{}, fmt.Errorf("extract text: %w", err)
	}

	name, cas := parseSheetText(text, fallbackName(path))
	if name == "" {
		return catalogEntry{}, fmt.Errorf("no product name found")
	}

	return catalogEntry{Name: name, CASNumber: cas, Source: filepath.Base(path)}, nil
}

func extractText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseSheetText pulls the product name and the first CAS registry number
// out of the sheet text. The name falls back to the file name when no
// labeled line is present.
func parseSheetText(text, fallback string) (name, cas string) {
	cas = casPattern.FindString(text)

	if match := productLabels.FindStringSubmatch(text); match != nil {
		name = normalizeName(match[1])
	}
	if name == "" {
		name = normalizeName(fallback)
	}
	return name, cas
}

func normalizeName(value string) string {
	value = whitespacePattern.ReplaceAllString(value, " ")
	value = strings.TrimSpace(value)
	// Label lines often carry trailing section text; keep the first clause.
	for _, sep := range []string{"  ", ";", "，"} {
		if idx := strings.Index(value, sep); idx > 0 {
			value = value[:idx]
		}
	}
	return strings.TrimSpace(value)
}

func fallbackName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	// Drop a trailing "SDS"/"MSDS" marker from the file name.
	fields := strings.Fields(base)
	for len(fields) > 1 {
		last := strings.ToUpper(fields[len(fields)-1])
		if last != "SDS" && last != "MSDS" {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

type upsertOutcome int

const (
	outcomeSkipped upsertOutcome = iota
	outcomeCreated
	outcomeUpdated
)

func upsertCatalogEntry(ctx context.Context, svc *service.Service, entry catalogEntry) (upsertOutcome, error) {
	existing, err := svc.FindExisting(ctx, entry.Name, entry.CASNumber, "")
	if err != nil {
		return outcomeSkipped, err
	}

	if existing != nil {
		if entry.CASNumber == "" || existing.CASNumber == entry.CASNumber {
			return outcomeSkipped, nil
		}
		if existing.CASNumber != "" {
			return outcomeSkipped, nil
		}
		if _, err := svc.UpdateItem(ctx, existing.ID, service.ItemInput{CASNumber: &entry.CASNumber}); err != nil {
			return outcomeSkipped, err
		}
		return outcomeUpdated, nil
	}

	category := defaultCategory
	quantityText := "0g"
	zero := 0.0
	unit := "g"
	if _, err := svc.CreateItem(ctx, service.ItemInput{
		Category:        &category,
		Name:            &entry.Name,
		QuantityText:    &quantityText,
		CASNumber:       &entry.CASNumber,
		CurrentQuantity: &zero,
		Unit:            &unit,
	}); err != nil {
		return outcomeSkipped, err
	}
	return outcomeCreated, nil
}
