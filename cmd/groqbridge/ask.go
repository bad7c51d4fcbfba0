package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"phobos.org.uk/groqbridge/internal/bridge"
	"phobos.org.uk/groqbridge/internal/client"
	"phobos.org.uk/groqbridge/internal/runner"
)

var askOpts struct {
	model   string
	python  string
	script  string
	server  string
	timeout time.Duration
	verbose bool
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt...]",
	Short: "Send one prompt and print the response",
	Long: `Send one prompt to the Groq client script and print its output.
The prompt is read from stdin when no arguments are given.
With --server the prompt goes to a running panel instead of a local child process.`,
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askOpts.model, "model", "m", "", "Model name or ID (mixtral, llama, gemma)")
	f.StringVar(&askOpts.python, "python", "", "Python interpreter (overrides config)")
	f.StringVar(&askOpts.script, "script", "", "Groq client script (overrides config)")
	f.StringVar(&askOpts.server, "server", "", "URL of a running panel, e.g. http://127.0.0.1:9100")
	f.DurationVar(&askOpts.timeout, "timeout", 0, "Kill the script after this long, e.g. 90s (overrides config)")
	f.BoolVarP(&askOpts.verbose, "verbose", "v", false, "Log each output line to stderr")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Processing...")

	var res *runner.Result
	var response string
	if askOpts.server != "" {
		inv, err := client.New(askOpts.server).Invoke(ctx, prompt, askOpts.model)
		if err != nil {
			spinner.Stop()
			return err
		}
		res, response = inv.Result, inv.Response
	} else {
		inv, err := askLocal(ctx, cmd, prompt)
		if err != nil {
			spinner.Stop()
			return err
		}
		res, response = inv.Result, inv.Response
	}
	spinner.Stop()

	if res == nil || !res.Succeeded() {
		pterm.Error.Println(response)
		return errors.New("script failed")
	}
	fmt.Fprint(cmd.OutOrStdout(), response)
	return nil
}

func askLocal(ctx context.Context, cmd *cobra.Command, prompt string) (bridge.Invocation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return bridge.Invocation{}, err
	}
	if askOpts.python != "" {
		cfg.PythonPath = askOpts.python
	}
	if askOpts.script != "" {
		cfg.ScriptPath = askOpts.script
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = askOpts.timeout
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Invocation{}, err
	}

	logOut := io.Discard
	if askOpts.verbose {
		logOut = os.Stderr
	}
	b := bridge.New(cfg, version, bridge.WithLogOutput(logOut))
	return b.Invoke(ctx, prompt, askOpts.model)
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
