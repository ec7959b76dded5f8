package delivery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/xuri/excelize/v2"
)

func TestBuild_SoftFailsPerCategory(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)

	sources := map[models.Category]CategorySource{
		models.CategoryAccounts:     staticSource{section: accountsSection()},
		models.CategoryTransactions: staticSource{err: errors.New("relation \"transactions\" does not exist")},
		models.CategoryPurchases:    staticSource{section: Section{Title: "Purchases"}},
		// lendBorrow, savings and analytics have no source at all
	}
	b := NewBuilder(st, sources)

	p, err := b.Build(context.Background(), s.UserID, models.DefaultIncludeData())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Summary) != 1 {
		t.Fatalf("expected 1 section, got %d", len(p.Summary))
	}
	if p.Summary[0].Category != models.CategoryAccounts {
		t.Errorf("section category = %s", p.Summary[0].Category)
	}
	if len(p.Omitted) != 5 {
		t.Errorf("expected 5 omitted categories, got %d: %+v", len(p.Omitted), p.Omitted)
	}
	if p.Message != s.Message || p.OwnerEmail != s.User.Email {
		t.Errorf("owner details not carried into payload: %+v", p)
	}
}

func TestBuild_OnlySelectedCategories(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)

	b := NewBuilder(st, map[models.Category]CategorySource{
		models.CategoryAccounts: staticSource{section: accountsSection()},
	})
	p, err := b.Build(context.Background(), s.UserID, models.IncludeData{Transactions: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := p.Section(models.CategoryAccounts); ok {
		t.Errorf("accounts included although not selected")
	}
	if len(p.Omitted) != 1 || p.Omitted[0].Category != models.CategoryTransactions {
		t.Errorf("expected transactions omitted as unavailable, got %+v", p.Omitted)
	}
}

func TestBuild_MissingOwnerIsFatal(t *testing.T) {
	st := newMemStore()
	b := NewBuilder(st, nil)

	s := armed(1, "a@example.com")
	if _, err := b.Build(context.Background(), s.UserID, models.DefaultIncludeData()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s.User.Email = ""
	st.put(s)
	if _, err := b.Build(context.Background(), s.UserID, models.DefaultIncludeData()); err == nil {
		t.Fatalf("expected an error for an owner without email")
	}
}

func TestBuild_RendersDocuments(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)

	failing := func(*Payload) (Attachment, error) { return Attachment{}, errors.New("boom") }
	b := NewBuilder(st, map[models.Category]CategorySource{
		models.CategoryAccounts: staticSource{section: accountsSection()},
	}, RenderJSON, failing, RenderWorkbook)

	p, err := b.Build(context.Background(), s.UserID, models.DefaultIncludeData())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Documents) != 2 {
		t.Fatalf("expected json and xlsx documents, got %d", len(p.Documents))
	}
	if !bytes.Contains(p.Documents[0].Data, []byte(`"category": "accounts"`)) {
		t.Errorf("json document missing accounts section:\n%s", p.Documents[0].Data)
	}

	f, err := excelize.OpenReader(bytes.NewReader(p.Documents[1].Data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Summary" || sheets[1] != "Accounts" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	v, err := f.GetCellValue("Accounts", "A2")
	if err != nil || v != "Checking" {
		t.Errorf("Accounts!A2 = %q (%v), want Checking", v, err)
	}
}

func TestRenderWorkbook_CollidingTitlesGetOwnSheets(t *testing.T) {
	p := &Payload{
		OwnerEmail:  "owner@example.com",
		GeneratedAt: t0,
		Summary: []Section{
			{Title: "Summary", Count: 1, Columns: []string{"A"}, Rows: [][]string{{"from summary section"}}},
			{Title: "Savings", Count: 1, Columns: []string{"A"}, Rows: [][]string{{"first"}}},
			{Title: "Savings", Count: 1, Columns: []string{"A"}, Rows: [][]string{{"second"}}},
		},
	}
	doc, err := RenderWorkbook(p)
	if err != nil {
		t.Fatalf("RenderWorkbook failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(doc.Data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	want := []string{"Summary", "Summary (2)", "Savings", "Savings (2)"}
	sheets := f.GetSheetList()
	if strings.Join(sheets, "|") != strings.Join(want, "|") {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	if v, _ := f.GetCellValue("Savings (2)", "A2"); v != "second" {
		t.Errorf("Savings (2)!A2 = %q", v)
	}
	if v, _ := f.GetCellValue("Summary", "A1"); v != "Owner" {
		t.Errorf("Summary sheet overwritten: A1 = %q", v)
	}
}

func TestUniqueSheetName_StaysWithinLimit(t *testing.T) {
	used := map[string]bool{}
	long := strings.Repeat("x", 40)
	first, second := uniqueSheetName(long, used), uniqueSheetName(long, used)
	if first == second || len([]rune(second)) > 31 || !strings.HasSuffix(second, " (2)") {
		t.Errorf("names %q and %q", first, second)
	}
}

func TestSheetName(t *testing.T) {
	if got := sheetName("Lend/Borrow [records]"); got != "LendBorrow records" {
		t.Errorf("sheetName = %q", got)
	}
	if got := sheetName("A very long section title that exceeds the limit"); len(got) != 31 {
		t.Errorf("sheetName length = %d, want 31", len(got))
	}
}
