package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/agriledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	format    string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agritrace",
	Short: "agriledger provenance CLI",
	Long: `agritrace records and inspects commodity batch journeys on an
agriledger server.

  agritrace create SEED_CREATED -f batchId=B1 -f variety=JS-9560
  agritrace submit B1 HARVEST_SOLD -f farmerId=F1 -f quantity=50
  agritrace track B1
  agritrace verify`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.agritrace")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("agritrace")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agritrace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "agriledger server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(createCmd, submitCmd, trackCmd, verifyCmd, blockCmd, locateCmd, batchesCmd, versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── create / submit ──────────────────────────────────────────────────────────

var (
	fieldArgs  []string
	fieldsJSON string
)

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&fieldArgs, "field", "f", nil, "Stage field as key=value (repeatable)")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "Stage fields as a JSON object")
}

var createCmd = &cobra.Command{
	Use:   "create <SEED_CREATED|HARVEST_SOLD>",
	Short: "Open a new batch",
	Long: `Open a new batch with a creation action. Pass -f batchId=... to choose
the ID; otherwise the server generates one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(fieldsJSON, fieldArgs)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.CreateBatch(context.Background(), strings.ToUpper(args[0]), fields)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(res)
		}
		fmt.Printf("Batch:            %s\n", res.BatchID)
		fmt.Printf("Block:            %d\n", res.BlockIndex)
		fmt.Printf("Hash:             %s\n", res.Hash)
		fmt.Printf("Digital passport: %s\n", res.DigitalPassport)
		fmt.Printf("Passport data:    %s\n", res.PassportData)
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <batchId> <action>",
	Short: "Record the next stage of a batch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(fieldsJSON, fieldArgs)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Submit(context.Background(), args[0], strings.ToUpper(args[1]), fields)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(res)
		}
		fmt.Printf("Batch: %s\n", res.BatchID)
		fmt.Printf("Stage: %s\n", res.Stage)
		fmt.Printf("Block: %d\n", res.BlockIndex)
		fmt.Printf("Hash:  %s\n", res.Hash)
		return nil
	},
}

func init() {
	addFieldFlags(createCmd)
	addFieldFlags(submitCmd)
}

// Fields whose -f values are sent as numbers or comma-separated lists.
var (
	numericFields = map[string]bool{"quantity": true, "oilContent": true, "price": true}
	listFields    = map[string]bool{"memberBatchIds": true}
)

// parseFields merges a JSON object with key=value pairs; pairs win.
func parseFields(rawJSON string, pairs []string) (client.Fields, error) {
	fields := client.Fields{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &fields); err != nil {
			return nil, fmt.Errorf("parse --fields: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("field %q: expected key=value", pair)
		}
		switch {
		case numericFields[key]:
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not a number", key, value)
			}
			fields[key] = n
		case listFields[key]:
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			fields[key] = items
		default:
			fields[key] = value
		}
	}
	return fields, nil
}

// ── track ────────────────────────────────────────────────────────────────────

var trackCmd = &cobra.Command{
	Use:   "track <batchId>",
	Short: "Show a batch's full history and the ledger's integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Track(context.Background(), args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(res)
		}

		fmt.Printf("Batch:     %s\n", res.BatchID)
		fmt.Printf("Stage:     %s\n", res.Stage)
		fmt.Printf("Integrity: %s", res.LedgerIntegrity)
		if res.FirstBadIndex != nil {
			fmt.Printf(" (first bad block %d: %s)", *res.FirstBadIndex, res.Reason)
		}
		fmt.Println()
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tTIME\tACTION\tHASH")
		for _, b := range res.History {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.Index, b.Timestamp.Format(time.RFC3339), b.Action(), short(b.Hash))
		}
		return w.Flush()
	},
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate the whole chain",
	Long:  "Validate the whole chain. Exits non-zero when the ledger is tampered.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		report, err := c.Verify(context.Background())
		if err != nil {
			return err
		}
		if format == "json" {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			fmt.Printf("Status: %s\n", report.Status)
			fmt.Printf("Blocks: %d\n", report.Blocks)
			if report.Status != client.StatusVerified {
				fmt.Printf("First bad block: %d (%s)\n", report.FirstBadIndex, report.Reason)
			}
		}
		if report.Status != client.StatusVerified {
			return fmt.Errorf("ledger tampered at block %d", report.FirstBadIndex)
		}
		return nil
	},
}

// ── block / locate ───────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Print a single ledger block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("index must be a non-negative integer")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := c.Block(context.Background(), idx)
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate <hash>",
	Short: "Find the block carrying a hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Locate(context.Background(), args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(res)
		}
		fmt.Printf("Block:     %d\n", res.Block.Index)
		fmt.Printf("Action:    %s\n", res.Block.Action())
		fmt.Printf("Batch:     %v\n", res.Block.Data["batchId"])
		fmt.Printf("Integrity: %s\n", res.LedgerIntegrity)
		return nil
	},
}

// ── batches ──────────────────────────────────────────────────────────────────

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List every batch with its current stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		batches, err := c.ListBatches(context.Background())
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(batches)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BATCH\tSTAGE\tBLOCKS")
		for _, b := range batches {
			fmt.Fprintf(w, "%s\t%s\t%d\n", b.BatchID, b.Stage, b.Blocks)
		}
		return w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agritrace CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agritrace %s\n", version)
	},
}
