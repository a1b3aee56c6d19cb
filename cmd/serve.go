package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oaps-analytics/deskops/internal/api"
	"github.com/oaps-analytics/deskops/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the dashboard over REST.
By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		port := viper.GetInt("port")

		flow, err := getWorkflow(ctx)
		if err != nil {
			return fmt.Errorf("initialize workflow: %w", err)
		}

		s, err := getStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		b := getBoard()
		b.SetRefreshHook(func(ticketCount int, took time.Duration, refreshErr error) {
			rec := &store.RefreshRecord{TicketCount: ticketCount, OK: refreshErr == nil}
			if refreshErr != nil {
				rec.Error = b.RefreshErr()
			}
			_ = s.RecordRefresh(context.Background(), rec)
			slog.Info("board refresh", "tickets", ticketCount, "took", took, "ok", refreshErr == nil)
		})

		srv := api.NewServer(b, flow, getDesk(), s)

		addr := fmt.Sprintf(":%d", port)
		fmt.Printf("Serving API at http://localhost%s\n", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
