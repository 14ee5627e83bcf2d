package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"aictl/internal/comfyui"
	"aictl/internal/config"
	"aictl/internal/deepstack"
	"aictl/internal/health"
	"aictl/internal/lmstudio"
	"aictl/internal/logging"
	"aictl/internal/transcribe"
	"aictl/internal/utils"
	"aictl/internal/version"
)

// isTTY reports whether stdin and stdout are both terminals.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Output palette.
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// app holds shared state for all subcommands.
type app struct {
	cfg    config.RuntimeConfig
	meta   config.Metadata
	logger logging.Logger
	health *health.Registry

	// flag values
	configFile  string
	model       string
	temperature float64
	maxTokens   int
	timeout     int
	verbose     bool
}

// NewRootCommand builds the aictl command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{health: health.NewRegistry()}

	rootCmd := &cobra.Command{
		Use:   "aictl",
		Short: "Command-line client suite for local AI services",
		Long: fmt.Sprintf(`%s

aictl talks to the AI services running on this machine: an LM Studio
(OpenAI-compatible) LLM server, a DeepStack vision server and a ComfyUI
image-generation server. It also maintains a local semantic index over
your image library.

%s
  aictl llm "summarize this paragraph: ..."
  aictl llm --interactive
  aictl transcribe recording.mp3 --format srt
  aictl translate dutch "good morning"
  aictl index ~/Pictures && aictl find "birthday cake"
  aictl doctor`,
			bold("aictl "+version.Version), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default: aictl.yaml in cwd or ~/.aictl.json)")
	pf.StringVarP(&a.model, "model", "m", "", "Model identifier override")
	pf.Float64Var(&a.temperature, "temperature", 0, "Sampling temperature override")
	pf.IntVarP(&a.maxTokens, "tokens", "t", 0, "Max completion tokens")
	pf.IntVar(&a.timeout, "timeout", 0, "Request timeout in seconds")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newLLMCommand(a),
		newModelsCommand(a),
		newTranscribeCommand(a),
		newTranslateCommand(a),
		newFacesCommand(a),
		newObjectsCommand(a),
		newScenesCommand(a),
		newImagegenCommand(a),
		newIndexCommand(a),
		newFindCommand(a),
		newToolsCommand(a),
		newServeCommand(a),
		newDoctorCommand(a),
		newVersionCommand(),
	)

	viper.SetConfigName("aictl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")

	return rootCmd, a
}

// initialize loads configuration, applying flag overrides only where the
// user actually set the flag.
func (a *app) initialize(cmd *cobra.Command) error {
	overrides := config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("model") {
		overrides.ChatModel = &a.model
	}
	if flags.Changed("temperature") {
		overrides.Temperature = &a.temperature
	}
	if flags.Changed("tokens") {
		overrides.MaxTokens = &a.maxTokens
	}
	if flags.Changed("timeout") {
		overrides.TimeoutSeconds = &a.timeout
	}
	if flags.Changed("verbose") {
		overrides.Verbose = &a.verbose
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}

	if err := viper.ReadInConfig(); err == nil && a.configFile == "" {
		opts = append(opts, config.WithConfigFile(viper.ConfigFileUsed()))
	}

	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.meta = meta
	a.logger = utils.NewComponentLogger("cli")

	if cfg.Verbose && meta.FilePath() != "" {
		fmt.Fprintf(os.Stderr, "%s config loaded from %s\n", gray("•"), meta.FilePath())
	}
	return nil
}

// chatClient builds an LM Studio client for the given model, falling back
// to the configured chat model.
func (a *app) chatClient(model string) *lmstudio.Client {
	if model == "" {
		model = a.cfg.ChatModel
	}
	client := lmstudio.New(lmstudio.Config{
		BaseURL:          a.cfg.LMStudioBaseURL,
		Model:            model,
		TimeoutSeconds:   a.cfg.TimeoutSeconds,
		MaxRetries:       2,
		MaxResponseBytes: int64(a.cfg.HTTPLimits.DefaultMaxResponseBytes),
		Logger:           utils.NewComponentLogger("lmstudio"),
	})
	a.health.Register(lmstudio.ServiceName, a.cfg.LMStudioBaseURL, client.Breaker())
	return client
}

func (a *app) visionClient() *lmstudio.Client {
	return a.chatClient(a.cfg.VisionModel)
}

func (a *app) deepstackClient() *deepstack.Client {
	client := deepstack.New(deepstack.Config{
		BaseURL:          a.cfg.DeepStackURL,
		APIKey:           a.cfg.DeepStackAPIKey,
		MinConfidence:    a.cfg.MinConfidence,
		TimeoutSeconds:   a.cfg.TimeoutSeconds,
		MaxResponseBytes: int64(a.cfg.HTTPLimits.DefaultMaxResponseBytes),
		Logger:           utils.NewComponentLogger("deepstack"),
	})
	a.health.Register(deepstack.ServiceName, a.cfg.DeepStackURL, client.Breaker())
	return client
}

func (a *app) comfyClient() *comfyui.Client {
	client := comfyui.New(comfyui.Config{
		BaseURL:          a.cfg.ComfyUIURL,
		MaxResponseBytes: int64(a.cfg.HTTPLimits.DefaultMaxResponseBytes),
		Logger:           utils.NewComponentLogger("comfyui"),
	})
	a.health.Register(comfyui.ServiceName, a.cfg.ComfyUIURL, client.Breaker())
	return client
}

func (a *app) transcribeClient() *transcribe.Client {
	client := transcribe.New(transcribe.Config{
		BaseURL:          a.cfg.LMStudioBaseURL,
		Model:            a.cfg.WhisperModel,
		MaxResponseBytes: int64(a.cfg.HTTPLimits.DefaultMaxResponseBytes),
		Logger:           utils.NewComponentLogger("transcribe"),
	})
	a.health.Register(transcribe.ServiceName, a.cfg.LMStudioBaseURL, client.Breaker())
	return client
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
