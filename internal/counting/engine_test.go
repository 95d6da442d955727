package counting_test

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/audit"
	"zaikokanri-backend/internal/catalog"
	"zaikokanri-backend/internal/counting"
	"zaikokanri-backend/internal/models"
	"zaikokanri-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	engine  *counting.Engine
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	aw := audit.NewWriter(db)
	cat := catalog.New(db, aw, zap.NewNop())
	return &fixture{db: db, catalog: cat, engine: counting.NewEngine(db, cat, aw, zap.NewNop())}
}

func (f *fixture) product(t *testing.T, name string, unit int, cost string) *models.Product {
	t.Helper()
	in := catalog.ProductInput{Name: name, UnitPerCase: &unit}
	if cost != "" {
		d := decimal.RequireFromString(cost)
		in.CostPrice = &d
	}
	p, err := f.catalog.CreateProduct(context.Background(), in)
	require.NoError(t, err)
	return p
}

func (f *fixture) draft(t *testing.T) *models.InventorySession {
	t.Helper()
	s, err := f.engine.CreateSession(context.Background(), counting.CreateSessionInput{Date: testutil.Date("2024-05-01")})
	require.NoError(t, err)
	return s
}

func (f *fixture) upsert(sessionID, productID uuid.UUID, cases, loose int64) (*models.CountLine, error) {
	return f.engine.UpsertCountLine(context.Background(), counting.UpsertCountLineInput{
		SessionID:  sessionID,
		ProductID:  productID,
		CaseCount:  cases,
		LooseCount: loose,
	})
}

func TestComputeQuantity(t *testing.T) {
	cases := []struct {
		cases, loose int64
		unit         int
		want         int64
	}{
		{0, 0, 1, 0},
		{3, 5, 12, 41},
		{0, 7, 24, 7},
		{10, 0, 6, 60},
		{1, 1, 1, 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.ComputeQuantity(tc.cases, tc.loose, tc.unit))
	}
}

func TestCountingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Beer", 12, "150")
	s := f.draft(t)
	assert.Equal(t, models.SessionDraft, s.Status)

	line, err := f.upsert(s.ID, p.ID, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(41), line.Quantity())
	assert.Equal(t, 12, line.UnitPerCaseSnapshot)

	totals, err := f.engine.GetSessionTotals(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(41), totals.TotalQuantity)
	assert.True(t, totals.Valuation.Equal(decimal.NewFromInt(6150)), totals.Valuation.String())
	assert.Equal(t, 1, totals.ValuedLines)
	assert.Empty(t, totals.UnvaluedProductIDs)

	done, err := f.engine.CompleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = f.upsert(s.ID, p.ID, 4, 0)
	assert.True(t, apperr.IsConflict(err))

	again, err := f.engine.CompleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, again.Status)
	assert.True(t, done.CompletedAt.Equal(*again.CompletedAt))

	err = f.engine.DeleteSession(ctx, s.ID)
	assert.True(t, apperr.IsConflict(err))
	assert.True(t, apperr.IsConflict(f.engine.DeleteCountLine(ctx, s.ID, p.ID)))

	kept, err := f.engine.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, kept.Lines, 1)
	assert.Equal(t, int64(41), kept.Lines[0].Quantity())
}

func TestSnapshotSurvivesProductChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Cola", 12, "")
	s := f.draft(t)

	_, err := f.upsert(s.ID, p.ID, 3, 5)
	require.NoError(t, err)

	six := 6
	_, err = f.catalog.UpdateProduct(ctx, p.ID, catalog.ProductInput{Name: "Cola", UnitPerCase: &six})
	require.NoError(t, err)

	totals, err := f.engine.GetSessionTotals(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(41), totals.TotalQuantity)

	line, err := f.upsert(s.ID, p.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, line.UnitPerCaseSnapshot)
	assert.Equal(t, int64(24), line.Quantity())

	other := f.draft(t)
	fresh, err := f.upsert(other.ID, p.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, fresh.UnitPerCaseSnapshot)
	assert.Equal(t, int64(12), fresh.Quantity())
}

func TestUpsertValidation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Water", 24, "")
	s := f.draft(t)

	cases := map[string]struct {
		cases, loose int64
		field        string
	}{
		"negative cases": {-1, 0, "case_count"},
		"negative loose": {0, -1, "loose_count"},
		"overflow":       {math.MaxInt64 / 2, 0, "case_count"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.upsert(s.ID, p.ID, tc.cases, tc.loose)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&models.CountLine{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpsertNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Juice", 1, "")
	s := f.draft(t)

	_, err := f.upsert(uuid.New(), p.ID, 1, 0)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.upsert(s.ID, uuid.New(), 1, 0)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.engine.CompleteSession(context.Background(), uuid.New())
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(f.engine.DeleteSession(context.Background(), uuid.New())))
	assert.True(t, apperr.IsNotFound(f.engine.DeleteCountLine(context.Background(), s.ID, p.ID)))
}

type stubCatalog struct{ p *models.Product }

func (s stubCatalog) LookupProduct(*gorm.DB, uuid.UUID) (*models.Product, error) {
	return s.p, nil
}

// staleCache answers every lookup with the same outdated product.
type staleCache struct{ raw []byte }

func (c staleCache) Get(context.Context, string) ([]byte, bool)       { return c.raw, true }
func (staleCache) Set(context.Context, string, []byte, time.Duration) {}
func (staleCache) Delete(context.Context, ...string)                  {}
func (staleCache) Incr(context.Context, string)                       {}

func TestFirstCountSnapshotIgnoresProductCache(t *testing.T) {
	db := testutil.NewDB(t)
	aw := audit.NewWriter(db)
	ctx := context.Background()
	plain := catalog.New(db, aw, zap.NewNop())
	p, err := plain.CreateProduct(ctx, catalog.ProductInput{Name: "Cider", UnitPerCase: intp(12)})
	require.NoError(t, err)

	outdated := *p
	outdated.UnitPerCase = 24
	raw, err := json.Marshal(outdated)
	require.NoError(t, err)
	cached := catalog.New(db, aw, zap.NewNop(), catalog.WithCache(staleCache{raw: raw}, time.Minute))
	got, err := cached.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 24, got.UnitPerCase)

	engine := counting.NewEngine(db, cached, aw, zap.NewNop())
	s, err := engine.CreateSession(ctx, counting.CreateSessionInput{Date: testutil.Date("2024-05-01")})
	require.NoError(t, err)
	line, err := engine.UpsertCountLine(ctx, counting.UpsertCountLineInput{SessionID: s.ID, ProductID: p.ID, CaseCount: 2, LooseCount: 1})
	require.NoError(t, err)
	assert.Equal(t, 12, line.UnitPerCaseSnapshot)
	assert.Equal(t, int64(25), line.Quantity())
	assert.Equal(t, 12, line.Product.UnitPerCase)
}

func TestScopedActorCannotCountOtherStoreProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.SeedStore(t, f.db, "A")
	b := testutil.SeedStore(t, f.db, "B")
	foreign, err := f.catalog.CreateProduct(ctx, catalog.ProductInput{Name: "B only", StoreID: &b.ID})
	require.NoError(t, err)
	own, err := f.catalog.CreateProduct(ctx, catalog.ProductInput{Name: "A only", StoreID: &a.ID})
	require.NoError(t, err)
	global := f.product(t, "Everywhere", 1, "")
	s := f.draft(t)

	in := counting.UpsertCountLineInput{SessionID: s.ID, ProductID: foreign.ID, CaseCount: 1, ActorStoreID: &a.ID}
	_, err = f.engine.UpsertCountLine(ctx, in)
	assert.True(t, apperr.IsNotFound(err))

	for _, id := range []uuid.UUID{own.ID, global.ID} {
		in.ProductID = id
		_, err = f.engine.UpsertCountLine(ctx, in)
		require.NoError(t, err)
	}

	// unscoped callers may still mix stores in a global session
	_, err = f.upsert(s.ID, foreign.ID, 1, 0)
	require.NoError(t, err)

	got, err := f.engine.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 3)
}

func TestUpsertRejectsInvalidPackaging(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Broken", 1, "")
	p.UnitPerCase = 0
	engine := counting.NewEngine(f.db, stubCatalog{p: p}, audit.NewWriter(f.db), zap.NewNop())
	s := f.draft(t)

	_, err := engine.UpsertCountLine(context.Background(), counting.UpsertCountLineInput{SessionID: s.ID, ProductID: p.ID, CaseCount: 1})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_per_case", verr.Field)
}

func TestUpsertRejectsProductOfAnotherStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.SeedStore(t, f.db, "A")
	b := testutil.SeedStore(t, f.db, "B")

	p, err := f.catalog.CreateProduct(ctx, catalog.ProductInput{Name: "B only", StoreID: &b.ID})
	require.NoError(t, err)
	global := f.product(t, "Everywhere", 1, "")
	s, err := f.engine.CreateSession(ctx, counting.CreateSessionInput{StoreID: &a.ID, Date: testutil.Date("2024-05-01")})
	require.NoError(t, err)

	_, err = f.upsert(s.ID, p.ID, 1, 0)
	assert.True(t, apperr.IsValidation(err))
	_, err = f.upsert(s.ID, global.ID, 1, 0)
	assert.NoError(t, err)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateSession(ctx, counting.CreateSessionInput{})
	assert.True(t, apperr.IsValidation(err))

	missing := uuid.New()
	_, err = f.engine.CreateSession(ctx, counting.CreateSessionInput{StoreID: &missing, Date: testutil.Date("2024-05-01")})
	assert.True(t, apperr.IsNotFound(err))

	// same store and date twice is allowed
	store := testutil.SeedStore(t, f.db, "Main")
	for i := 0; i < 2; i++ {
		_, err = f.engine.CreateSession(ctx, counting.CreateSessionInput{StoreID: &store.ID, Date: testutil.Date("2024-05-01")})
		require.NoError(t, err)
	}
	list, err := f.engine.ListSessions(ctx, counting.SessionFilter{StoreID: &store.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLastWriteWins(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Chips", 10, "")
	s := f.draft(t)

	_, err := f.upsert(s.ID, p.ID, 5, 5)
	require.NoError(t, err)
	_, err = f.upsert(s.ID, p.ID, 0, 3)
	require.NoError(t, err)

	got, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(0), got.Lines[0].CaseCount)
	assert.Equal(t, int64(3), got.Lines[0].LooseCount)
	assert.Equal(t, int64(3), got.Lines[0].Quantity())
}

func TestTotalsReportUnvaluedLines(t *testing.T) {
	f := newFixture(t)
	priced := f.product(t, "Priced", 6, "2.50")
	unpriced := f.product(t, "Unpriced", 1, "")
	s := f.draft(t)

	_, err := f.upsert(s.ID, priced.ID, 2, 0)
	require.NoError(t, err)
	_, err = f.upsert(s.ID, unpriced.ID, 0, 9)
	require.NoError(t, err)

	totals, err := f.engine.GetSessionTotals(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.LineCount)
	assert.Equal(t, int64(21), totals.TotalQuantity)
	assert.Equal(t, 1, totals.ValuedLines)
	assert.True(t, totals.Valuation.Equal(decimal.RequireFromString("30")), totals.Valuation.String())
	assert.Equal(t, []uuid.UUID{unpriced.ID}, totals.UnvaluedProductIDs)
}

func TestGetSessionOrdersLinesByProductName(t *testing.T) {
	f := newFixture(t)
	s := f.draft(t)
	for _, name := range []string{"Tofu", "Apple", "Miso"} {
		p := f.product(t, name, 1, "")
		_, err := f.upsert(s.ID, p.ID, 1, 0)
		require.NoError(t, err)
	}

	got, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	assert.Equal(t, "Apple", got.Lines[0].Product.Name)
	assert.Equal(t, "Miso", got.Lines[1].Product.Name)
	assert.Equal(t, "Tofu", got.Lines[2].Product.Name)
}

func TestDeleteDraftSessionRemovesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Rice", 5, "")
	s := f.draft(t)
	_, err := f.upsert(s.ID, p.ID, 1, 1)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteSession(ctx, s.ID))

	_, err = f.engine.GetSession(ctx, s.ID)
	assert.True(t, apperr.IsNotFound(err))
	var n int64
	require.NoError(t, f.db.Model(&models.CountLine{}).Where("session_id = ?", s.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = f.upsert(s.ID, p.ID, 1, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteCountLineOnDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Salt", 1, "")
	s := f.draft(t)
	_, err := f.upsert(s.ID, p.ID, 0, 4)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteCountLine(ctx, s.ID, p.ID))
	got, err := f.engine.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Lines)
}

func TestConcurrentCountersOnOneSession(t *testing.T) {
	f := newFixture(t)
	s := f.draft(t)
	products := make([]*models.Product, 8)
	for i := range products {
		products[i] = f.product(t, uuid.NewString(), 4, "1")
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(products))
	for _, p := range products {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.upsert(s.ID, id, 1, 1)
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	totals, err := f.engine.GetSessionTotals(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, len(products), totals.LineCount)
	assert.Equal(t, int64(5*len(products)), totals.TotalQuantity)
}

func TestCompleteRacesUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Soda", 6, "")

	for i := 0; i < 20; i++ {
		s := f.draft(t)

		var (
			wg          sync.WaitGroup
			upsertErr   error
			completeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, upsertErr = f.upsert(s.ID, p.ID, 1, 2)
		}()
		go func() {
			defer wg.Done()
			_, completeErr = f.engine.CompleteSession(ctx, s.ID)
		}()
		wg.Wait()

		require.NoError(t, completeErr)
		require.True(t, upsertErr == nil || apperr.IsConflict(upsertErr), "unexpected error: %v", upsertErr)

		got, err := f.engine.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionCompleted, got.Status)
		if upsertErr != nil {
			assert.Empty(t, got.Lines)
		} else {
			require.Len(t, got.Lines, 1)
			assert.Equal(t, int64(8), got.Lines[0].Quantity())
		}
	}
}

func TestCompletionWritesAuditEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.draft(t)

	_, err := f.engine.CompleteSession(ctx, s.ID)
	require.NoError(t, err)
	_, err = f.engine.CompleteSession(ctx, s.ID)
	require.NoError(t, err)

	var logs []models.AuditLog
	require.NoError(t, f.db.Where("entity_id = ? AND action = ?", s.ID.String(), models.AuditActionComplete).Find(&logs).Error)
	assert.Len(t, logs, 1)
}

func TestListSessionsIncludeGlobal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.SeedStore(t, f.db, "A")
	b := testutil.SeedStore(t, f.db, "B")

	global := f.draft(t)
	own, err := f.engine.CreateSession(ctx, counting.CreateSessionInput{StoreID: &a.ID, Date: testutil.Date("2024-05-02")})
	require.NoError(t, err)
	_, err = f.engine.CreateSession(ctx, counting.CreateSessionInput{StoreID: &b.ID, Date: testutil.Date("2024-05-03")})
	require.NoError(t, err)

	strict, err := f.engine.ListSessions(ctx, counting.SessionFilter{StoreID: &a.ID})
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, own.ID, strict[0].ID)

	visible, err := f.engine.ListSessions(ctx, counting.SessionFilter{StoreID: &a.ID, IncludeGlobal: true})
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, own.ID, visible[0].ID)
	assert.Equal(t, global.ID, visible[1].ID)

	drafts, err := f.engine.ListSessions(ctx, counting.SessionFilter{StoreID: &a.ID, IncludeGlobal: true, Status: models.SessionCompleted})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func intp(v int) *int { return &v }
