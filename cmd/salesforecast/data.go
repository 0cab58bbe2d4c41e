package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rewired-gh/salesforecast/internal/logger"
	"github.com/rewired-gh/salesforecast/internal/models"
	"github.com/spf13/cobra"
)

// salesCmd inspects and corrects stored sales
func salesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sales",
		Short: "List, add or delete stored sales",
	}

	var product string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			sales, err := store.GetSales(cmd.Context(), product)
			if err != nil {
				return err
			}
			printSales(os.Stdout, sales)
			return nil
		},
	}
	list.Flags().StringVarP(&product, "product", "p", "", "Only list this product")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "add DATE PRODUCT QTY",
		Short: "Record a single sale",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid qty %q: %w", args[2], err)
			}
			store, err := a.storage()
			if err != nil {
				return err
			}
			sale := models.Sale{Date: args[0], ProductName: args[1], Qty: qty}
			if err := store.AddSale(cmd.Context(), &sale); err != nil {
				return err
			}
			logger.Info("Added sale %d", sale.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ID %q: %w", args[0], err)
			}
			store, err := a.storage()
			if err != nil {
				return err
			}
			return store.DeleteSale(cmd.Context(), id)
		},
	})

	return cmd
}

// productsCmd manages the product catalogue
func productsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List, add or delete products",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			products, err := store.GetProducts(cmd.Context())
			if err != nil {
				return err
			}
			printProducts(os.Stdout, products)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Add a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			product := models.Product{Name: args[0]}
			if err := store.AddProduct(cmd.Context(), &product); err != nil {
				return err
			}
			logger.Info("Added product %d", product.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a product; its sales are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ID %q: %w", args[0], err)
			}
			store, err := a.storage()
			if err != nil {
				return err
			}
			return store.DeleteProduct(cmd.Context(), id)
		},
	})

	return cmd
}
