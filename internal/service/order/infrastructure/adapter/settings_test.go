package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
)

func TestBuildPricing(t *testing.T) {
	pricing, err := BuildPricing(SettingsDocument{TaxRate: "0.08"})
	require.NoError(t, err)
	assert.True(t, pricing.TaxRate.Equal(decimal.RequireFromString("0.08")))
	quote, err := pricing.Shipping.Quote(decimal.NewFromInt(50), 1)
	require.NoError(t, err)
	assert.True(t, quote.IsZero(), "no expression means free shipping")

	for _, doc := range []SettingsDocument{
		{TaxRate: "eight percent"},
		{TaxRate: "-0.1"},
		{TaxRate: "1.5"},
		{ShippingExpr: "units"},
	} {
		_, err := BuildPricing(doc)
		assert.Error(t, err, "%+v", doc)
	}
}

func TestStaticSettings(t *testing.T) {
	s, err := NewStaticSettings(SettingsDocument{TaxRate: "0.1", ShippingExpr: "2.5"})
	require.NoError(t, err)

	pricing, err := s.Pricing(context.Background())
	require.NoError(t, err)
	totals, err := domain.ComputeTotals([]domain.LineItem{
		{ProductID: "A", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	}, pricing)
	require.NoError(t, err)
	assert.Equal(t, "13.50", totals.Total.StringFixed(2))
}

// fakeConfigSource 模拟 Nacos 配置中心
type fakeConfigSource struct {
	mu        sync.Mutex
	content   string
	getErr    error
	listeners map[string]func(string)
	cancelled []string
}

func (f *fakeConfigSource) GetConfig(string) (string, error) {
	return f.content, f.getErr
}

func (f *fakeConfigSource) ListenConfig(dataID string, onChange func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[string]func(string))
	}
	f.listeners[dataID] = onChange
	return nil
}

func (f *fakeConfigSource) CancelListenConfig(dataID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, dataID)
	f.cancelled = append(f.cancelled, dataID)
	return nil
}

func (f *fakeConfigSource) publish(dataID, content string) {
	f.mu.Lock()
	listener := f.listeners[dataID]
	f.mu.Unlock()
	listener(content)
}

func taxRateOf(t *testing.T, s *NacosSettings) string {
	t.Helper()
	pricing, err := s.Pricing(context.Background())
	require.NoError(t, err)
	return pricing.TaxRate.String()
}

func TestNacosSettingsOverlaysLocalDocument(t *testing.T) {
	source := &fakeConfigSource{content: "tax_rate: \"0.2\"\n"}
	s, err := NewNacosSettings(source, "checkout.yaml", SettingsDocument{TaxRate: "0.1", ShippingExpr: "3.0"})
	require.NoError(t, err)

	assert.Equal(t, "0.2", taxRateOf(t, s))
	pricing, err := s.Pricing(context.Background())
	require.NoError(t, err)
	quote, err := pricing.Shipping.Quote(decimal.Zero, 1)
	require.NoError(t, err)
	assert.Equal(t, "3", quote.String(), "fields missing in nacos keep the local value")
}

func TestNacosSettingsFallsBackWhenUnavailable(t *testing.T) {
	source := &fakeConfigSource{getErr: errors.New("connection refused")}
	s, err := NewNacosSettings(source, "checkout.yaml", SettingsDocument{TaxRate: "0.1"})
	require.NoError(t, err)
	assert.Equal(t, "0.1", taxRateOf(t, s))
}

func TestNacosSettingsHotReload(t *testing.T) {
	source := &fakeConfigSource{}
	s, err := NewNacosSettings(source, "checkout.yaml", SettingsDocument{TaxRate: "0.1"})
	require.NoError(t, err)

	source.publish("checkout.yaml", "tax_rate: \"0.05\"\n")
	assert.Equal(t, "0.05", taxRateOf(t, s))

	source.publish("checkout.yaml", "tax_rate: \"7\"\n")
	assert.Equal(t, "0.05", taxRateOf(t, s), "invalid update keeps the previous settings")

	source.publish("checkout.yaml", "tax_rate: [")
	assert.Equal(t, "0.05", taxRateOf(t, s))

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"checkout.yaml"}, source.cancelled)
}

func TestNacosSettingsRejectsInvalidLocalDocument(t *testing.T) {
	_, err := NewNacosSettings(&fakeConfigSource{}, "checkout.yaml", SettingsDocument{TaxRate: "x"})
	assert.Error(t, err)
}
