package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecom-insights/backend/pkg/config"
)

func writeDataset(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"ad_sales.csv":    "date,item_id,ad_sales,impressions,ad_spend,clicks,units_sold\n2025-06-01,4,10.5,100,2.5,4,1\n2025-06-02,4,12,120,3,5,2\n",
		"total_sales.csv": "date,item_id,total_sales,total_units_ordered\n2025-06-01,4,30,3\n",
		"eligibility.csv": "eligibility_datetime_utc,item_id,eligibility,message\n2025-06-04 08:50:07,4,FALSE,Out of stock\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		SQLite:  config.SQLiteConfig{Path: filepath.Join(dir, "ecom.db")},
		Dataset: config.DatasetConfig{Dir: dir, Autoload: true},
		LLM:     config.LLMConfig{Model: "test-model", TimeoutSec: 1},
	}
}

func TestEnsureDataset(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	ctx := context.Background()

	s, err := New(ctx, testConfig(dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if s.Cache != nil {
		t.Error("cache should be nil when redis is disabled")
	}

	counts, err := s.EnsureDataset(ctx, false)
	if err != nil {
		t.Fatalf("EnsureDataset failed: %v", err)
	}
	if counts["ad_sales_metrics"] != 2 || counts["product_eligibility"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	counts, err = s.EnsureDataset(ctx, false)
	if err != nil {
		t.Fatalf("second EnsureDataset failed: %v", err)
	}
	if counts != nil {
		t.Errorf("loaded dataset was reloaded: %v", counts)
	}

	counts, err = s.EnsureDataset(ctx, true)
	if err != nil {
		t.Fatalf("forced EnsureDataset failed: %v", err)
	}
	if counts["ad_sales_metrics"] != 2 {
		t.Errorf("forced reload duplicated or lost rows: %v", counts)
	}

	res, err := s.Engine.Execute(ctx, "SELECT SUM(ad_spend) FROM ad_sales_metrics;")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := res.Value(0, 0); got != 5.5 {
		t.Errorf("SUM(ad_spend) = %v, want 5.5", got)
	}

	res, err = s.Engine.Execute(ctx, "SELECT message FROM product_eligibility WHERE eligibility = FALSE;")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.NumRows() != 1 || res.Value(0, 0) != "Out of stock" {
		t.Errorf("unexpected eligibility rows %v", res.Rows())
	}
}

func TestEnsureDatasetMissingFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(context.Background(), testConfig(dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, err := s.EnsureDataset(context.Background(), false); err == nil {
		t.Error("expected error without CSV files")
	}
}
