package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a single prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.close()

			return a.reply(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts.strict)
		},
	}
}

func newBatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file>",
		Short: "Send every non-empty line of a file as a prompt",
		Long: `Send every non-empty line of a file as a prompt, printing one reply per line.
Lines starting with # are skipped. A failed prompt is logged and the batch continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := readPrompts(args[0])
			if err != nil {
				return err
			}

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			failed := 0
			for i, prompt := range prompts {
				if ctx.Err() != nil {
					a.logger.Warn("batch interrupted", "done", i, "total", len(prompts))
					return ctx.Err()
				}

				a.executor.LogAndContinue(fmt.Sprintf("batch prompt %d", i+1), func() error {
					return a.reply(ctx, out, prompt, opts.strict)
				}, func(err error) {
					failed++
					fmt.Fprintf(out, "error: %v\n", err)
				})
			}

			a.logger.Info("batch finished", "prompts", len(prompts), "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d prompts failed", failed, len(prompts))
			}
			return nil
		},
	}
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt file: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return prompts, nil
}
