// Package snapshot persists generated entity data as partitioned CSV
// files on disk, one directory per calendar day:
//
//	root/
//	  customers/2025-01-01/data.csv
//	  orders/2025-01-02/data.csv
//
// The layout doubles as the ingest source for the raw warehouse tier.
package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/pkg/table"
)

const dataFile = "data.csv"

// PartitionPath returns the csv path for one entity and day.
func PartitionPath(root, entityName, day string) string {
	return filepath.Join(root, entityName, day, dataFile)
}

// ListPartitions returns the partition days present for an entity,
// sorted ascending. A missing entity directory yields an empty list.
func ListPartitions(root, entityName string) ([]string, error) {
	dir := filepath.Join(root, entityName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions for %s: %w", entityName, err)
	}
	days := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), dataFile)); err != nil {
			continue
		}
		days = append(days, e.Name())
	}
	sort.Strings(days)
	return days, nil
}

// Write stores one day of entity data. Nulls are written as empty
// fields, floats with two decimal places.
func Write(root string, ent entity.Entity, day string, tbl *table.Table) error {
	path := PartitionPath(root, ent.Name, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ent.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, len(ent.Columns))
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		for j, col := range ent.Columns {
			record[j] = formatCell(row[j], col.Kind)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Read loads one day of entity data, coercing cells to the entity's
// column kinds. Empty fields in nullable columns become nil.
func Read(root string, ent entity.Entity, day string) (*table.Table, error) {
	path := PartitionPath(root, ent.Name, day)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) != len(ent.Columns) {
		return nil, fmt.Errorf("%s: expected %d columns, found %d", path, len(ent.Columns), len(header))
	}
	for i, col := range ent.Columns {
		if header[i] != col.Name {
			return nil, fmt.Errorf("%s: column %d is %q, expected %q", path, i, header[i], col.Name)
		}
	}

	tbl := table.New(ent.ColumnNames()...)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make([]any, len(ent.Columns))
		for j, col := range ent.Columns {
			v, perr := parseCell(record[j], col)
			if perr != nil {
				return nil, fmt.Errorf("%s: %w", path, perr)
			}
			row[j] = v
		}
		if err := tbl.Append(row); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func formatCell(v any, kind entity.Kind) string {
	if v == nil {
		return ""
	}
	switch kind {
	case entity.KindInt:
		if i, ok := table.Int64(v); ok {
			return strconv.FormatInt(i, 10)
		}
	case entity.KindFloat:
		if f, ok := table.Float64(v); ok {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	}
	return table.String(v)
}

func parseCell(s string, col entity.Column) (any, error) {
	if s == "" {
		if col.Nullable {
			return nil, nil
		}
		if col.Kind == entity.KindString {
			return "", nil
		}
		return nil, fmt.Errorf("column %s: empty value in non nullable column", col.Name)
	}
	switch col.Kind {
	case entity.KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return i, nil
	case entity.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return f, nil
	default:
		return s, nil
	}
}

// Clear removes everything under root.
func Clear(root string) error {
	return os.RemoveAll(root)
}
