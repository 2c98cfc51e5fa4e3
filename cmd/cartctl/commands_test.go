package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/app"
	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/config"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

const session = "3b0f4f55-5b5e-4d7e-9d55-6f1f0f2f4b10"

func memoryOpener(mem *storage.MemoryStore) opener {
	return func(*cobra.Command) (*app.Dependencies, *config.Config, error) {
		return &app.Dependencies{Store: mem}, &config.Config{StorageKeyPrefix: "shop"}, nil
	}
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShowPrintsTotals(t *testing.T) {
	mem := storage.NewMemoryStore()
	data, err := cart.EncodeRecord(cart.Record{Items: []cart.Item{
		{ID: "kopi-arabika-250", Name: "Kopi", BasePrice: 85000, UnitPrice: 85000, Quantity: 2, MaxStock: 40},
	}})
	require.NoError(t, err)
	require.NoError(t, mem.Save(context.Background(), storage.Key("shop", session), data))

	out, err := run(t, memoryOpener(mem), "show", session)
	require.NoError(t, err)

	var view cart.View
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Items, 1)
	require.EqualValues(t, 170000, view.Totals.Subtotal)
	require.Equal(t, 2, view.Stats.TotalQuantity)
}

func TestShowReportsMissingAndCorruptRecords(t *testing.T) {
	mem := storage.NewMemoryStore()
	_, err := run(t, memoryOpener(mem), "show", session)
	require.ErrorContains(t, err, "no cart stored")

	require.NoError(t, mem.Save(context.Background(), storage.Key("shop", session), []byte(`{"items":[],"version":"0.1"}`)))
	_, err = run(t, memoryOpener(mem), "show", session)
	require.ErrorIs(t, err, storage.ErrVersionMismatch)
}

func TestPurgeDeletesRecord(t *testing.T) {
	mem := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, storage.Key("shop", session), []byte(`{}`)))

	out, err := run(t, memoryOpener(mem), "purge", session)
	require.NoError(t, err)
	require.Contains(t, out, "purged shop:cart:"+session)
	require.Zero(t, mem.Len())
}

func TestValidateSeed(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("products:\n  - {id: a, name: A, price: 10, maxStock: 1}\n"), 0o600))
	out, err := run(t, nil, "validate-seed", good)
	require.NoError(t, err)
	require.Contains(t, out, "ok: 1 products")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("products:\n  - {id: a, price: 10, tiers: [{min: 0, price: 5}]}\n"), 0o600))
	_, err = run(t, nil, "validate-seed", bad)
	require.Error(t, err)
}
