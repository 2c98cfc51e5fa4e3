package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront-cart/internal/app"
	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

const purgeLockTTL = 5 * time.Second

func newShowCmd(open opener) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Decode a stored cart and print it with totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cfg, err := open(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			key := storage.Key(cfg.StorageKeyPrefix, args[0])
			data, err := deps.Store.Load(cmd.Context(), key)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no cart stored for session %s (key %s)", args[0], key)
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", key, err)
			}
			if _, err := cart.DecodeRecord(data); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}

			if seedPath == "" {
				seedPath = cfg.CatalogSeedPath
			}
			seed, err := app.LoadSeed(seedPath)
			if err != nil {
				return err
			}
			view, err := viewOf(cmd.Context(), args[0], data, seed.CartConfig(pricing.Money(cfg.ShippingFreeThreshold)))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "catalog seed used to resolve coupons and shipping (defaults to CATALOG_SEED_PATH)")
	return cmd
}

// viewOf rehydrates a throwaway store from a copy of data so totals are
// computed exactly as the API would, without touching the real backend.
func viewOf(ctx context.Context, session string, data []byte, template cart.Config) (cart.View, error) {
	mem := storage.NewMemoryStore()
	key := storage.Key("", session)
	if err := mem.Save(ctx, key, data); err != nil {
		return cart.View{}, err
	}
	template.Session = session
	template.Key = key
	template.Storage = mem
	s, err := cart.New(ctx, template)
	if err != nil {
		return cart.View{}, err
	}
	defer s.Close(ctx)
	return cart.NewView(s), nil
}

func newPurgeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <session>",
		Short: "Delete a stored cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cfg, err := open(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			key := storage.Key(cfg.StorageKeyPrefix, args[0])
			del := func(ctx context.Context) error { return deps.Store.Delete(ctx, key) }
			if deps.Locker != nil {
				err = deps.Locker.WithLock(cmd.Context(), "lock:"+key, purgeLockTTL, del)
			} else {
				err = del(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("purge %s: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", key)
			return nil
		},
	}
}

func newValidateSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seed <path>",
		Short: "Load a catalog seed and validate every product, coupon and shipping option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := app.LoadSeed(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d products, %d coupons, %d shipping options\n",
				len(seed.Products()), len(seed.CouponDefinitions()), len(seed.ShippingOptions(0)))
			return nil
		},
	}
}
