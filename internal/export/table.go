// Package export projects purchases and inventory sessions into fixed
// column tables and renders them as CSV or XLSX.
package export

import (
	"bytes"
	"sort"
	"strconv"
	"time"

	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"

	"github.com/google/uuid"
)

var (
	PurchaseHeader  = []string{"ID", "StoreID", "Date", "TotalAmount", "ImageURL", "CreatedAt"}
	SessionHeader   = []string{"ID", "StoreID", "Date", "Status", "CreatedAt"}
	CountLineHeader = []string{"SessionID", "ProductID", "ProductName", "CaseCount", "LooseCount", "UnitPerCase", "Quantity", "CostPrice"}
)

// Table is a header plus rows of already formatted cells. Absent values are
// empty strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// PurchaseTable emits one row per purchase, by date descending, newest
// entry first on equal dates. The input slice is not reordered.
func PurchaseTable(purchases []models.Purchase) Table {
	sorted := make([]models.Purchase, len(purchases))
	copy(sorted, purchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return newer(sorted[i].Date, sorted[i].CreatedAt, sorted[i].ID, sorted[j].Date, sorted[j].CreatedAt, sorted[j].ID)
	})

	t := Table{Header: PurchaseHeader, Rows: make([][]string, 0, len(sorted))}
	for _, p := range sorted {
		total := ""
		if p.TotalAmount.Valid {
			total = p.TotalAmount.Decimal.String()
		}
		t.Rows = append(t.Rows, []string{
			p.ID.String(),
			optionalID(p.StoreID),
			httpx.FormatDate(p.Date),
			total,
			optional(p.ImageURL),
			httpx.FormatTime(p.CreatedAt),
		})
	}
	return t
}

// SessionTable orders sessions the same way as PurchaseTable.
func SessionTable(sessions []models.InventorySession) Table {
	sorted := make([]models.InventorySession, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return newer(sorted[i].Date, sorted[i].CreatedAt, sorted[i].ID, sorted[j].Date, sorted[j].CreatedAt, sorted[j].ID)
	})

	t := Table{Header: SessionHeader, Rows: make([][]string, 0, len(sorted))}
	for _, s := range sorted {
		t.Rows = append(t.Rows, []string{
			s.ID.String(),
			optionalID(s.StoreID),
			httpx.FormatDate(s.Date),
			string(s.Status),
			httpx.FormatTime(s.CreatedAt),
		})
	}
	return t
}

// CountLineTable lists a session's lines in the order given. CostPrice is
// the product's current price.
func CountLineTable(s *models.InventorySession) Table {
	t := Table{Header: CountLineHeader, Rows: make([][]string, 0, len(s.Lines))}
	for _, l := range s.Lines {
		cost := ""
		if l.Product.CostPrice.Valid {
			cost = l.Product.CostPrice.Decimal.String()
		}
		t.Rows = append(t.Rows, []string{
			l.SessionID.String(),
			l.ProductID.String(),
			l.Product.Name,
			strconv.FormatInt(l.CaseCount, 10),
			strconv.FormatInt(l.LooseCount, 10),
			strconv.Itoa(l.UnitPerCaseSnapshot),
			strconv.FormatInt(l.Quantity(), 10),
			cost,
		})
	}
	return t
}

func newer(dateA, createdA time.Time, idA uuid.UUID, dateB, createdB time.Time, idB uuid.UUID) bool {
	if !dateA.Equal(dateB) {
		return dateA.After(dateB)
	}
	if !createdA.Equal(createdB) {
		return createdA.After(createdB)
	}
	return bytes.Compare(idA[:], idB[:]) > 0
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
