package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/notifyr/internal/gateway"
	"github.com/user/notifyr/internal/normalize"
	"github.com/user/notifyr/internal/reply"
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Run payloads from a JSON file (or stdin) through the pipeline and print the results",
	Long: "Reads a JSON array of raw payloads and ingests them into a fresh\n" +
		"in-memory pipeline. Useful for inspecting how notifications normalize\n" +
		"and aggregate without running the daemon.",
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open payload file: %w", err)
		}
		defer f.Close()
		in = f
	}

	var payloads []types.RawPayload
	if err := json.NewDecoder(in).Decode(&payloads); err != nil {
		return fmt.Errorf("decode payloads: %w", err)
	}

	normalizer := normalize.New(cfg.SelfSentinel)
	st := store.New(cfg.Capacity, nil)
	tracker := reply.NewTracker(st)
	gw := gateway.New(normalizer, st, tracker, nil, nil)

	for i := range payloads {
		result, err := gw.Ingest(&payloads[i])
		if err != nil {
			fmt.Fprintf(os.Stdout, "%d: rejected (%v)\n", i, err)
			continue
		}
		fmt.Fprintf(os.Stdout, "%d: %s event=%s thread=%s\n", i, result.Status, result.EventID, result.Conversation.ID)
	}

	fmt.Fprintf(os.Stdout, "\nledger: %d events\n", st.Len())
	for _, conv := range st.Conversations() {
		fmt.Fprintf(os.Stdout, "%s [%s] unread=%d last=%q\n",
			conv.DisplayName, conv.ID, conv.UnreadCount, conv.LastMessageContent)
	}
	return nil
}
