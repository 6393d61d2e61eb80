package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/logger"
	"procodus.dev/gridloss/pkg/lossapi"
	"procodus.dev/gridloss/pkg/mq"
)

const (
	rpcTimeout       = 30 * time.Second
	resubscribeDelay = time.Second
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and manage loss alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack ID",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAction(lossapi.LossServiceClient.AcknowledgeAlert),
}

var alertsInvestigateCmd = &cobra.Command{
	Use:   "investigate ID",
	Short: "Mark an alert as under investigation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAction(lossapi.LossServiceClient.InvestigateAlert),
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAction(lossapi.LossServiceClient.ResolveAlert),
}

var alertsDismissCmd = &cobra.Command{
	Use:   "dismiss ID",
	Short: "Close an alert as a false alarm",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAction(lossapi.LossServiceClient.DismissAlert),
}

var alertsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count alerts by status, severity and type",
	Args:  cobra.NoArgs,
	RunE:  runAlertsStats,
}

var alertsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print alert events from RabbitMQ as they arrive",
	Args:  cobra.NoArgs,
	RunE:  runAlertsWatch,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd, alertsInvestigateCmd, alertsResolveCmd,
		alertsDismissCmd, alertsStatsCmd, alertsWatchCmd)

	alertsCmd.PersistentFlags().String("server", "localhost:9090", "gridloss gRPC server address")
	_ = viper.BindPFlag("alerts.server", alertsCmd.PersistentFlags().Lookup("server"))

	alertsListCmd.Flags().StringSlice("status", nil, "filter by status (active, acknowledged, investigating, resolved, false_alarm)")
	alertsListCmd.Flags().StringSlice("severity", nil, "filter by severity (info, warning, critical, emergency)")
	alertsListCmd.Flags().StringSlice("type", nil, "filter by alert type")
	alertsListCmd.Flags().Int32("limit", 50, "maximum number of alerts")
	alertsListCmd.Flags().String("page-token", "", "continue a previous listing")
	addScopeFlags(alertsListCmd)
	addScopeFlags(alertsStatsCmd)

	for _, cmd := range []*cobra.Command{alertsAckCmd, alertsInvestigateCmd, alertsResolveCmd, alertsDismissCmd} {
		cmd.Flags().String("actor", os.Getenv("USER"), "who performs the action")
		cmd.Flags().String("notes", "", "resolution notes")
	}
}

func dialLossService() (lossapi.LossServiceClient, func(), error) {
	addr := viper.GetString("alerts.server")
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return lossapi.NewLossServiceClient(conn), func() { _ = conn.Close() }, nil
}

func toScope(cmd *cobra.Command) lossapi.Scope {
	f := scopeFilter(cmd)
	return lossapi.Scope{
		CompanyID:     uint64(f.CompanyID),
		DistrictID:    uint64(f.DistrictID),
		VillageID:     uint64(f.VillageID),
		TransformerID: uint64(f.TransformerID),
	}
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	client, closeConn, err := dialLossService()
	if err != nil {
		return err
	}
	defer closeConn()

	statuses, _ := cmd.Flags().GetStringSlice("status")
	severities, _ := cmd.Flags().GetStringSlice("severity")
	types, _ := cmd.Flags().GetStringSlice("type")
	limit, _ := cmd.Flags().GetInt32("limit")
	token, _ := cmd.Flags().GetString("page-token")

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()

	resp, err := client.ListAlerts(ctx, &lossapi.ListAlertsRequest{
		Statuses:   statuses,
		Severities: severities,
		Types:      types,
		PageToken:  token,
		Scope:      toScope(cmd),
		PageSize:   limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tSEVERITY\tTYPE\tCONSUMER\tTRANSFORMER\tLOSS %\tEST. LOSS")
	for _, a := range resp.Alerts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			a.ID, a.CreatedAt.Local().Format(time.DateTime), a.Status, a.Severity, a.Type,
			a.ConsumerID, a.TransformerCode, a.PowerLossPct, a.EstimatedFinancialLoss)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if resp.NextPageToken != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nmore alerts: --page-token %s\n", resp.NextPageToken)
	}
	return nil
}

type alertAction func(lossapi.LossServiceClient, context.Context, *lossapi.AlertActionRequest, ...grpc.CallOption) (*lossapi.AlertResponse, error)

func runAlertAction(action alertAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q", args[0])
		}

		actor, _ := cmd.Flags().GetString("actor")
		notes, _ := cmd.Flags().GetString("notes")

		client, closeConn, err := dialLossService()
		if err != nil {
			return err
		}
		defer closeConn()

		ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
		defer cancel()

		resp, err := action(client, ctx, &lossapi.AlertActionRequest{Actor: actor, Notes: notes, ID: id})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "alert %d is now %s\n", resp.Alert.ID, resp.Alert.Status)
		return nil
	}
}

func runAlertsStats(cmd *cobra.Command, _ []string) error {
	client, closeConn, err := dialLossService()
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()

	resp, err := client.AlertStats(ctx, &lossapi.AlertStatsRequest{Scope: toScope(cmd)})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", resp.Total)
	fmt.Fprintf(w, "active\t%d\n", resp.Active)
	fmt.Fprintf(w, "acknowledged\t%d\n", resp.Acknowledged)
	fmt.Fprintf(w, "investigating\t%d\n", resp.Investigating)
	fmt.Fprintf(w, "resolved\t%d\n", resp.Resolved)
	fmt.Fprintf(w, "false alarm\t%d\n", resp.FalseAlarm)
	for k, v := range resp.BySeverity {
		fmt.Fprintf(w, "active %s\t%d\n", k, v)
	}
	for k, v := range resp.ByType {
		fmt.Fprintf(w, "active %s\t%d\n", k, v)
	}
	return w.Flush()
}

func runAlertsWatch(cmd *cobra.Command, _ []string) error {
	log := GetLogger()

	url := viper.GetString("rabbitmq.url")
	if url == "" {
		return errors.New("--rabbitmq-url is required to watch alerts")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mq.New(viper.GetString("rabbitmq.queue_name"), url,
		logger.WithComponent(log, "mq-client"),
		mq.WithDurableQueue(),
		mq.WithPrefetch(1),
	)
	defer func() { _ = client.Close() }()

	out := cmd.OutOrStdout()
	show := func(_ context.Context, ev events.AlertEvent) error {
		_, err := fmt.Fprintf(out, "%s %-18s #%d %s %s %s %s %.2f%% loss (%s)\n",
			ev.OccurredAt.Local().Format(time.DateTime), ev.Kind, ev.AlertID, ev.Status,
			ev.Severity, ev.ConsumerID, ev.TransformerCode, ev.PowerLossPct, ev.EstimatedLoss)
		return err
	}

	// The delivery channel closes on reconnect, so subscribe again until
	// interrupted.
	for {
		err := events.Subscribe(ctx, client, log, show)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Debug("waiting for RabbitMQ", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}
