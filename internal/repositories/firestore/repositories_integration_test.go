//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
	pconfig "github.com/jara-commerce/api/internal/platform/config"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestProductRepositoryDecrementIsAtomic(t *testing.T) {
	provider := startEmulator(t, "products-test")
	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	seedProduct(ctx, t, provider, "prod_last", 1)

	const buyers = 2
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		shortages atomic.Int32
	)
	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.DecrementStock(ctx, "prod_last", 1)
			var stockErr *repositories.StockError
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient:
				shortages.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || shortages.Load() != 1 {
		t.Fatalf("expected one winner and one shortage, got %d/%d", successes.Load(), shortages.Load())
	}
	product, err := repo.FindByID(ctx, "prod_last")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.StockQty != 0 {
		t.Fatalf("expected stock 0, got %d", product.StockQty)
	}

	if err := repo.IncrementStock(ctx, "prod_last", 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if product, _ = repo.FindByID(ctx, "prod_last"); product.StockQty != 3 {
		t.Fatalf("expected stock 3 after release, got %d", product.StockQty)
	}

	_, err = repo.DecrementStock(ctx, "missing", 1)
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorProductNotFound {
		t.Fatalf("expected product not found stock error, got %v", err)
	}
}

func TestProductRepositoryCatalogLifecycle(t *testing.T) {
	provider := startEmulator(t, "catalog-test")
	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	discount := int64(90000)
	products := []domain.Product{
		{ID: "prod_1", Name: "Pashmina Shawl", SKU: "PSH-1", ProductType: domain.ProductTypeStandard, Categories: []string{"apparel"}, BasePrice: 120000, DiscountPrice: &discount, StockQty: 4, IsAvailable: true, CreatedAt: base},
		{ID: "prod_2", Name: "Copper Jug", SKU: "CJ-1", ProductType: domain.ProductTypeFactory, VendorID: "vendor_1", Categories: []string{"kitchen"}, BasePrice: 250000, StockQty: 2, IsAvailable: true, CreatedAt: base.Add(time.Hour)},
		{ID: "prod_3", Name: "Pashmina Scarf", SKU: "PSC-1", ProductType: domain.ProductTypeStandard, Categories: []string{"apparel"}, BasePrice: 60000, StockQty: 1, IsAvailable: false, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, product := range products {
		if err := repo.Insert(ctx, product); err != nil {
			t.Fatalf("insert %s: %v", product.ID, err)
		}
	}
	var repoErr repositories.RepositoryError
	if err := repo.Insert(ctx, products[0]); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	page, err := repo.List(ctx, repositories.ProductListFilter{Category: "apparel"})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "prod_1" {
		t.Fatalf("expected only the available apparel product, got %+v", page.Items)
	}
	page, err = repo.List(ctx, repositories.ProductListFilter{Keyword: "PASHMINA", IncludeUnavailable: true})
	if err != nil {
		t.Fatalf("list by keyword: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "prod_3" {
		t.Fatalf("expected both pashmina products newest first, got %+v", page.Items)
	}
	page, err = repo.List(ctx, repositories.ProductListFilter{VendorID: "vendor_1"})
	if err != nil || len(page.Items) != 1 || page.Items[0].ID != "prod_2" {
		t.Fatalf("expected vendor listing, got %+v %v", page.Items, err)
	}

	if _, err := repo.DecrementStock(ctx, "prod_1", 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	edited := products[0]
	edited.Name = "Pashmina Wrap"
	edited.DiscountPrice = nil
	edited.StockQty = 99
	edited.UpdatedAt = base.Add(3 * time.Hour)
	if err := repo.Update(ctx, edited); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.FindByID(ctx, "prod_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "Pashmina Wrap" || got.DiscountPrice != nil || got.StockQty != 3 {
		t.Fatalf("expected catalog fields updated and stock untouched, got %+v", got)
	}

	if err := repo.Delete(ctx, "prod_3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "prod_3"); !isNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "prod_3"); !isNotFound(err) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
}

func TestOrderRepositoryListAndHolds(t *testing.T) {
	provider := startEmulator(t, "orders-test")
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		hold := base.Add(time.Duration(i) * time.Minute)
		order := domain.Order{
			ID:            fmt.Sprintf("ord_%d", i),
			OrderNumber:   fmt.Sprintf("JR-2026-%06d", i+1),
			UserID:        "user_1",
			Status:        domain.OrderStatusPending,
			PaymentMethod: domain.PaymentMethodCard,
			PaymentStatus: domain.PaymentStatusInitiated,
			Items:         []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 1000, Total: 1000}},
			OrderTotal:    1000,
			HoldExpiresAt: &hold,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:     base,
		}
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page, err := repo.ListByUser(ctx, "user_1", domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "ord_2" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, err = repo.ListByUser(ctx, "user_1", domain.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ord_0" || page.NextPageToken != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	expired, err := repo.ListExpiredHolds(ctx, base.Add(90*time.Second), 10)
	if err != nil {
		t.Fatalf("expired holds: %v", err)
	}
	ids := make([]string, 0, len(expired))
	for _, order := range expired {
		ids = append(ids, order.ID)
	}
	sort.Strings(ids)
	if strings.Join(ids, ",") != "ord_0,ord_1" {
		t.Fatalf("unexpected expired holds %v", ids)
	}
}

func TestPromotionRepositoryRejectsDuplicateCode(t *testing.T) {
	provider := startEmulator(t, "promotions-test")
	repo, err := NewPromotionRepository(provider)
	if err != nil {
		t.Fatalf("new promotion repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	promo := domain.Promotion{ID: "promo_1", Code: "dashain10", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10, IsActive: true}
	if err := repo.Insert(ctx, promo); err != nil {
		t.Fatalf("insert: %v", err)
	}
	promo.ID = "promo_2"
	err = repo.Insert(ctx, promo)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
	found, err := repo.FindByCode(ctx, " Dashain10 ")
	if err != nil || found.ID != "promo_1" {
		t.Fatalf("expected to find promo_1 by code, got %+v %v", found, err)
	}
}

func TestCounterRepositorySequences(t *testing.T) {
	provider := startEmulator(t, "counter-test")
	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 8
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, "orders:2026", 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if val != int64(i+1) {
			t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, val)
		}
	}

	limit, start := int64(1), int64(0)
	if err := repo.Configure(ctx, "orders:bounded", repositories.CounterConfig{Step: 1, MaxValue: &limit, InitialValue: &start}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := repo.Next(ctx, "orders:bounded", 0); err != nil {
		t.Fatalf("next bounded: %v", err)
	}
	if _, err := repo.Next(ctx, "orders:bounded", 0); !errors.Is(err, repositories.ErrCounterExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func seedProduct(ctx context.Context, t *testing.T, provider *pfirestore.Provider, id string, stock int64) {
	t.Helper()
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, productDocument{
		Name:        "Dhaka Topi",
		SKU:         "TOPI-1",
		ProductType: string(domain.ProductTypeStandard),
		BasePrice:   100000,
		StockQty:    stock,
		WeightGrams: 200,
		IsAvailable: true,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func startEmulator(t *testing.T, projectID string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, out)
	}
	containerID := strings.TrimSpace(string(out))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(ctx, "docker", "stop", containerID).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(30 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("firestore emulator at %s did not become ready", endpoint)
		}
		time.Sleep(200 * time.Millisecond)
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: projectID, EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}
