// Package dataset classifies uploaded workbooks by their declared file name
// and names the buckets their sheets are stored in.
package dataset

import (
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/textnorm"
)

// Kind selects how a workbook is processed. It is decided once, from the
// file name, when the file is received.
type Kind int

const (
	// KindUnknown files are registered and can be browsed but are not
	// persisted.
	KindUnknown Kind = iota
	// KindExecution is the FPI execution export: every sheet is stored
	// with the generic extractor.
	KindExecution
	// KindGoals is the goal tracking workbook: its formation sheets are
	// stored with the goal extractor.
	KindGoals
)

func (k Kind) String() string {
	switch k {
	case KindExecution:
		return "ejecucion_fpi"
	case KindGoals:
		return "metas"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsPrimaryDataset reports whether name denotes an FPI execution export.
func IsPrimaryDataset(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "ejecucion fpi") || strings.Contains(n, "ejecución fpi")
}

// IsGoalsDataset reports whether name denotes a goal tracking workbook.
func IsGoalsDataset(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "seguimiento") &&
		strings.Contains(n, "metas") &&
		strings.Contains(n, "sena")
}

// Classify maps a declared file name to its Kind. A name matching both
// predicates is treated as an execution export.
func Classify(name string) Kind {
	switch {
	case IsPrimaryDataset(name):
		return KindExecution
	case IsGoalsDataset(name):
		return KindGoals
	default:
		return KindUnknown
	}
}

// Persists reports whether sheets named sheet are stored for workbooks of
// kind k: every sheet of an execution export, only the formation sheets of
// a goals workbook.
func (k Kind) Persists(sheet string) bool {
	switch k {
	case KindExecution:
		return true
	case KindGoals:
		return IsGoalSheet(sheet)
	default:
		return false
	}
}

// Bucket returns the bucket a sheet of a workbook of kind k is stored in,
// or "" when k is not persisted.
func (k Kind) Bucket(sheet string) string {
	switch k {
	case KindExecution:
		return "ejecucion_fpi_" + textnorm.CollectionName(sheet)
	case KindGoals:
		return "metas_" + textnorm.CollectionName(sheet)
	default:
		return ""
	}
}

// IsGoalSheet reports whether a sheet of a goals workbook holds a goal
// table: the formation breakdowns by regional or by centre.
func IsGoalSheet(sheet string) bool {
	n := textnorm.Normalize(sheet)
	return strings.Contains(n, "formacion") &&
		(strings.Contains(n, "regional") || strings.Contains(n, "ctros"))
}
