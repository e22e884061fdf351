package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trialwatch/internal/model"
	"github.com/ppiankov/trialwatch/internal/store"
)

var (
	eventsDBPath   string
	eventsEntity   string
	eventsType     string
	eventsSeverity string
	eventsLimit    int
)

func init() {
	eventsCmd.Flags().StringVar(&eventsDBPath, "db", "", "sqlite database (default ~/.trialwatch/trialwatch.db)")
	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", "filter by entity id")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (e.g. RISK_CONFLICT)")
	eventsCmd.Flags().StringVar(&eventsSeverity, "severity", "", "filter by severity (INFO, WARNING, CRITICAL)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum events to return")
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the guardian event log",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	db, err := store.OpenSQLite(eventsDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := db.Query(store.EventQuery{
		EntityID:  eventsEntity,
		EventType: model.EventType(eventsType),
		Severity:  model.Severity(eventsSeverity),
		Limit:     eventsLimit,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}
