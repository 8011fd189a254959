package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Probe each venue at 7 PM tonight and print what the endpoint returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			prober := a.prober()
			party := a.cfg.PartySizes[0]
			failed := 0
			for _, v := range a.cfg.Venues {
				tonight := reservation.Clock{Hour: 19}.On(time.Now().In(v.Location), v.Location)
				fmt.Fprintf(out, "%s (%s) at %s\n", v.DisplayName(), v.MerchantID, tonight.Format("2006-01-02 3:04 PM MST"))

				inv, err := prober.Inventory(ctx, reservation.ProbeRequest{
					MerchantID: v.MerchantID,
					PartySize:  party,
					SearchAt:   tonight,
					Limit:      a.cfg.ProbeLimit,
				})
				if err != nil {
					failed++
					fmt.Fprintf(out, "  error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "  types returned: %d\n", len(inv.Blocks))
				for _, b := range inv.Blocks {
					fmt.Fprintf(out, "  - %s (%d): %d slots\n", b.TypeName, b.TypeID, len(b.Times))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d venues failed", failed, len(a.cfg.Venues))
			}
			return nil
		},
	}
}
