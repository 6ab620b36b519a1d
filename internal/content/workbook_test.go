package content_test

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

func TestLoadVocabularyWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.xlsx")

	f := excelize.NewFile()
	rows := [][]string{
		{"Word", "Translation", "Example"},
		{" hola ", "hello", "¡Hola, amigo!"},
		{"", "ignored", ""},
		{"gracias", "thank you"},
	}
	for i, row := range rows {
		for j, v := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", name, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	f.Close()

	items, err := content.LoadVocabularyWorkbook(path)
	if err != nil {
		t.Fatalf("LoadVocabularyWorkbook() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Word != "hola" || items[0].Example != "¡Hola, amigo!" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Translation != "thank you" || items[1].Example != "" {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestLoadVocabularyWorkbook_Missing(t *testing.T) {
	if _, err := content.LoadVocabularyWorkbook(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Error("expected error for missing workbook")
	}
}
