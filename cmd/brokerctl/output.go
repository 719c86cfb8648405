package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/xtrntr/brokerclient/internal/coordinator"
	"github.com/xtrntr/brokerclient/internal/models"
)

func printOrders(w io.Writer, orders []models.Order) error {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tASSET\tSIDE\tSIZE\tPRICE\tSTATUS\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.UserID, o.AssetName, o.Side, o.Size.String(), o.Price.String(), o.Status,
			o.CreateDate.Format(models.DateTimeLayout))
	}
	return tw.Flush()
}

func printHoldings(w io.Writer, holdings []models.AssetHolding) error {
	cash, stocks := coordinator.SplitHoldings(holdings)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSIZE\tUSABLE\tRESERVED")
	for _, group := range [][]models.AssetHolding{cash, stocks} {
		for _, h := range group {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.AssetName, h.Size.String(), h.UsableSize.String(), h.Reserved().String())
		}
	}
	return tw.Flush()
}
