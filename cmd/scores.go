package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "List finished quiz scores, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		recs, err := s.QuizResultRepo().List(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("query scores: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No quizzes taken yet.")
			return nil
		}

		fmt.Printf("%-19s  %-28s  %s\n", "Timestamp", "Topic", "Score")
		fmt.Println(strings.Repeat("─", 60))
		for _, r := range recs {
			fmt.Printf("%-19s  %-28s  %d/%d\n",
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(r.Topic, 28),
				r.Score, r.Total,
			)
		}
		return nil
	},
}

func init() {
	scoresCmd.Flags().IntP("limit", "n", 20, "Number of results to show (0 for all)")
}
