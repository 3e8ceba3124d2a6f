package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/feed"
	"github.com/rustyeddy/backtester/market"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download and inspect candle files",
	Long: `Download candles from OANDA into the CSV layout the csv data source
reads, and check existing files for gaps.

Examples:
  backtester data oanda --pair EUR_USD --tf M1 --start 2025-07-01 --end 2025-07-07
  backtester data check data/EUR_USD_M1.csv --tf M1`,
}

var dataOandaCmd = &cobra.Command{
	Use:   "oanda",
	Short: "Download candles from the OANDA v20 API to CSV",
	Args:  cobra.NoArgs,
	RunE:  runDataOanda,
}

var dataCheckCmd = &cobra.Command{
	Use:   "check <file.csv>",
	Short: "Report candle count and gaps of a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataCheck,
}

var dataFlags struct {
	pair  string
	tf    string
	start string
	end   string
	out   string
	env   string
	token string
	price string
}

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataOandaCmd)
	dataCmd.AddCommand(dataCheckCmd)

	f := dataOandaCmd.Flags()
	f.StringVar(&dataFlags.pair, "pair", "", "instrument (default: config pair)")
	f.StringVar(&dataFlags.tf, "tf", "M1", "timeframe (M1, M5, M15, H1, ...)")
	f.StringVar(&dataFlags.start, "start", "", "first day (default: config start_date)")
	f.StringVar(&dataFlags.end, "end", "", "last day, inclusive (default: config end_date)")
	f.StringVar(&dataFlags.out, "out", "", "output file (default: <csv_dir>/<PAIR>_<TF>.csv)")
	f.StringVar(&dataFlags.env, "env", "", "practice or live (default: config data.oanda_env)")
	f.StringVar(&dataFlags.token, "token", "", "API token (default: config data.oanda_token)")
	f.StringVar(&dataFlags.price, "price", "M", "price component: M, B or A")

	dataCheckCmd.Flags().StringVar(&dataFlags.tf, "tf", "M1", "timeframe of the file")
}

func runDataOanda(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dataFlags.pair != "" {
		cfg.Pair = dataFlags.pair
	}
	if dataFlags.start != "" {
		cfg.StartDate = dataFlags.start
	}
	if dataFlags.end != "" {
		cfg.EndDate = dataFlags.end
	}
	if dataFlags.env != "" {
		cfg.Data.OANDAEnv = dataFlags.env
	}
	if dataFlags.token != "" {
		cfg.Data.OANDAToken = dataFlags.token
	}
	if cfg.Data.OANDAToken == "" {
		return fmt.Errorf("an OANDA token is required (--token or BACKTESTER_OANDA_TOKEN)")
	}

	tf, err := market.ParseTimeframe(dataFlags.tf)
	if err != nil {
		return err
	}
	start, end, err := cfg.Dates()
	if err != nil {
		return err
	}
	end = end.AddDate(0, 0, 1)
	base, err := feed.OANDABaseURL(cfg.Data.OANDAEnv)
	if err != nil {
		return err
	}

	pair := market.NormalizePair(cfg.Pair)
	out := dataFlags.out
	if out == "" {
		out = filepath.Join(cfg.Data.CSVDir, fmt.Sprintf("%s_%s.csv", pair, tf))
	}

	src := &feed.OANDA{
		BaseURL: base,
		Token:   cfg.Data.OANDAToken,
		Price:   dataFlags.price,
		HTTP:    &http.Client{Timeout: time.Duration(cfg.Data.TimeoutSec) * time.Second},
	}
	series, err := src.Fetch(cmd.Context(), pair, tf, start, end)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := feed.WriteCSV(fh, series); err != nil {
		fh.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := fh.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d %s candles for %s to %s\n", series.Len(), tf, pair, out)
	return nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	tf, err := market.ParseTimeframe(dataFlags.tf)
	if err != nil {
		return err
	}
	cs, err := feed.ReadCSVFile(args[0])
	if err != nil {
		return err
	}
	s := market.Series{Instrument: filepath.Base(args[0]), Timeframe: tf, Candles: cs}

	w := cmd.OutOrStdout()
	if err := s.Validate(); err != nil {
		fmt.Fprintf(w, "✗ %v\n", err)
	}
	fmt.Fprintf(w, "Candles:   %d\n", s.Len())
	if s.Len() > 0 {
		fmt.Fprintf(w, "First:     %s\n", cs[0].Time.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "Last:      %s\n", cs[len(cs)-1].Time.UTC().Format(time.RFC3339))
	}
	st := s.GapStats()
	fmt.Fprintf(w, "Gaps:      %d (weekend %d, suspicious %d)\n", st.GapCount, st.WeekendGaps, st.SuspiciousGaps)
	if st.GapCount > 0 {
		fmt.Fprintf(w, "Longest:   %d bars (%s)\n", st.LongestGap, st.LongestGapKind)
	}
	return nil
}

