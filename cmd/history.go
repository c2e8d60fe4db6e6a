package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored tutoring transcripts",
}

var historyShowCmd = &cobra.Command{
	Use:   "show [session-key]",
	Short: "Print the transcript of one session",
	Long: "Print the transcript of one session. The key is given directly or built\n" +
		"from --topic or the --grade/--subject/--unit/--topic-name flags.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd, depsOptions{})
		if err != nil {
			return err
		}
		defer d.Close()

		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			sess, err := sessionFromFlags(cmd)
			if err != nil {
				return err
			}
			key = sess.Key
		}

		history, err := d.openTranscripts(cmd.Context())
		if err != nil {
			return err
		}
		turns, err := history.Load(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		if len(turns) == 0 {
			fmt.Println("No turns stored for", key)
			return nil
		}

		sep := strings.Repeat("─", 60)
		for _, t := range turns {
			fmt.Println(sep)
			fmt.Printf("%s\n\nQ: %s\n\nA: %s\n", time.UnixMilli(t.TS).Local().Format("2006-01-02 15:04:05"), t.User, t.Assistant)
		}
		fmt.Println(sep)
		return nil
	},
}

var historyKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List session keys stored in the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		keys, err := s.TranscriptRepo().SessionKeys(cmd.Context())
		if err != nil {
			return fmt.Errorf("list session keys: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("No transcripts stored yet.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	historyShowCmd.Flags().String("topic", "", "Catalog topic ID, e.g. science-6/biology/photosynthesis")
	historyShowCmd.Flags().String("grade", "", "Grade, e.g. 6th")
	historyShowCmd.Flags().String("subject", "", "Subject, e.g. Science")
	historyShowCmd.Flags().String("unit", "", "Unit, e.g. Biology")
	historyShowCmd.Flags().String("topic-name", "", "Topic name, e.g. Photosynthesis")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyKeysCmd)
}
