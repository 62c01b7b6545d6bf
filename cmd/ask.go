package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the manuals",
	Long:  `Retrieves the most relevant manual passages for the question and asks the chat model to answer from them, citing each passage as [문서 N] or [Document N].`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Bool("no-stream", false, "print the answer only once it is complete")
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	noStream, _ := cmd.Flags().GetBool("no-stream")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(ctx, true, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var reply *rag.Reply
	if noStream || jsonOutput {
		reply, err = a.Assistant.Ask(ctx, args[0])
	} else {
		reply, err = a.Assistant.AskStream(ctx, args[0], func(delta string) error {
			_, err := fmt.Print(delta)
			return err
		})
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(reply)
	}
	if noStream {
		fmt.Println(reply.Answer.Answer)
	}
	printSources(reply)

	u := reply.TokenUsage
	if u.Total > 0 {
		fmt.Fprintf(os.Stderr, "\nTokens: %d prompt + %d completion = %d (~$%.4f, %s)\n",
			u.Prompt, u.Completion, u.Total,
			llm.EstimateCost(reply.Model, u.Prompt, u.Completion), reply.Model)
	}
	return nil
}

func printSources(reply *rag.Reply) {
	if len(reply.Sources) == 0 {
		return
	}
	if reply.Language == "korean" {
		fmt.Println("\n관련 문서 출처:")
	} else {
		fmt.Println("\nSources:")
	}
	for _, s := range reply.Sources {
		fmt.Printf("  [%d] %s - %s (score %.3f)\n", s.Index, s.Type, s.DocumentID, s.Score)
		if verbose {
			fmt.Printf("      %s\n", s.TextPreview)
		}
	}
}
