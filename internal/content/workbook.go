package content

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadVocabularyWorkbook reads catalog entries from the first sheet of an
// .xlsx file with columns word, translation, example. A header row whose
// first cell is "word" is skipped, as are rows with a blank word.
func LoadVocabularyWorkbook(path string) ([]VocabularyItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var items []VocabularyItem
	for i, row := range rows {
		word := strings.TrimSpace(cell(row, 0))
		if word == "" {
			continue
		}
		if i == 0 && strings.EqualFold(word, "word") {
			continue
		}
		items = append(items, VocabularyItem{
			Word:        word,
			Translation: strings.TrimSpace(cell(row, 1)),
			Example:     strings.TrimSpace(cell(row, 2)),
		})
	}
	return items, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
