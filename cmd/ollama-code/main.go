package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/pmnowak/ollama-code/internal/config"
	"github.com/pmnowak/ollama-code/internal/engine"
	"github.com/pmnowak/ollama-code/internal/prompts"
	"github.com/pmnowak/ollama-code/internal/providers"
	"github.com/pmnowak/ollama-code/internal/session"
	"github.com/pmnowak/ollama-code/internal/tools"
)

func main() {
	// Load .env if present so local setups need no shell exports.
	_ = godotenv.Load()

	if err := run(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

type cliOptions struct {
	repoRoot     string
	provider     string
	baseURL      string
	model        string
	apiKey       string
	maxSteps     int
	numCtx       int
	streaming    bool
	approveAll   bool
	confirmReads bool
}

func run() error {
	repoFlag := flag.String("repo", "", "path to the repository root (default: current directory)")
	modelFlag := flag.String("model", "", "model name (default: provider default)")
	urlFlag := flag.String("url", "", "provider base URL override")
	providerFlag := flag.String("provider", "", "llm provider: ollama, openai, lmstudio, anthropic")
	stepsFlag := flag.Int("steps", 0, "max tool steps per turn")
	streamFlag := flag.Bool("stream", false, "stream assistant output incrementally")
	yesFlag := flag.Bool("yes", false, "approve every tool call without asking")
	confirmReadsFlag := flag.Bool("confirm-reads", false, "ask before read-only tools too")
	flag.Parse()

	mgr, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	opts, err := resolveOptions(cfg, *repoFlag, *providerFlag, *urlFlag, *modelFlag, *stepsFlag)
	if err != nil {
		return err
	}
	opts.streaming = *streamFlag
	opts.approveAll = *yesFlag
	opts.confirmReads = *confirmReadsFlag || !cfg.AutoApproveReads

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	store, err := session.NewStore(filepath.Join(home, ".ollama-code"))
	if err != nil {
		return err
	}
	defer store.Close()

	repl, err := newREPL(opts, store)
	if err != nil {
		return err
	}
	return repl.loop()
}

// resolveOptions merges flags, the config file and environment variables.
// Flags win, then config, then env.
func resolveOptions(cfg *config.Config, repoFlag, providerFlag, urlFlag, modelFlag string, stepsFlag int) (cliOptions, error) {
	repoRoot := repoFlag
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cliOptions{}, fmt.Errorf("get working directory: %w", err)
		}
		repoRoot = wd
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return cliOptions{}, fmt.Errorf("resolve repository path: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return cliOptions{}, fmt.Errorf("repository path is not a directory: %s", absRoot)
	}

	provider := firstNonEmpty(providerFlag, cfg.Provider, os.Getenv("LLM_PROVIDER"), "ollama")

	var envURL, envModel, envKey string
	switch provider {
	case "ollama":
		envURL = os.Getenv("OLLAMA_BASE_URL")
		envModel = os.Getenv("OLLAMA_MODEL")
	case "openai":
		envURL = os.Getenv("OPENAI_BASE_URL")
		envModel = os.Getenv("OPENAI_MODEL")
		envKey = os.Getenv("OPENAI_API_KEY")
	case "lmstudio", "openai-compatible":
		envURL = os.Getenv("LMSTUDIO_BASE_URL")
		envModel = os.Getenv("LMSTUDIO_MODEL")
	case "anthropic":
		envModel = os.Getenv("ANTHROPIC_MODEL")
		envKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	maxSteps := stepsFlag
	if maxSteps == 0 {
		maxSteps = cfg.MaxSteps
	}

	return cliOptions{
		repoRoot: absRoot,
		provider: provider,
		baseURL:  firstNonEmpty(urlFlag, cfg.BaseURL, envURL),
		model:    firstNonEmpty(modelFlag, cfg.Model, envModel),
		apiKey:   firstNonEmpty(cfg.APIKey, envKey),
		maxSteps: maxSteps,
		numCtx:   cfg.NumCtx,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// repl owns the interactive loop state: the agent, the session being
// recorded, and the shared stdin reader.
type repl struct {
	opts  cliOptions
	agent *engine.Agent
	llm   engine.LLMClient
	store *session.Store
	sess  *session.Session
	stdin *bufio.Reader

	mu         sync.Mutex
	turnCancel context.CancelFunc
}

func newREPL(opts cliOptions, store *session.Store) (*repl, error) {
	r := &repl{
		opts:  opts,
		store: store,
		stdin: bufio.NewReader(os.Stdin),
	}

	llm, model, err := providers.NewLLMClient(opts.provider, opts.baseURL, opts.model, opts.apiKey)
	if err != nil {
		return nil, err
	}
	r.llm = llm
	r.opts.model = model

	if oc, ok := llm.(*providers.OllamaClient); ok {
		if err := oc.Ping(context.Background(), model); err != nil {
			fmt.Println(noticeStyle.Render("warning: " + err.Error()))
		}
	}

	agent, err := r.buildAgent(opts.repoRoot)
	if err != nil {
		return nil, err
	}
	r.agent = agent
	r.sess = r.newSession()

	return r, nil
}

func (r *repl) buildAgent(repoRoot string) (*engine.Agent, error) {
	registry, err := tools.NewToolRegistry(repoRoot, engine.FullToolSet())
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	prompt, err := prompts.BuildCodingPrompt(repoRoot, loadProjectRules(repoRoot))
	if err != nil {
		return nil, err
	}

	hooks := engine.Hooks{consoleHook{streaming: r.opts.streaming}}
	if os.Getenv("OLLAMA_CODE_DEBUG") != "" {
		hooks = append(hooks, engine.LoggerHook{L: log.New(os.Stderr, "debug: ", log.Ltime)})
	}

	builder := engine.NewAgentBuilder().
		WithLLM(r.llm).
		WithModel(r.opts.model).
		WithToolRegistry(registry, repoRoot, engine.FullToolSet()).
		WithApprover(r.approver()).
		WithPromptContent(prompt).
		WithStreaming(r.opts.streaming).
		WithHooks(hooks)

	if r.opts.maxSteps > 0 {
		builder = builder.WithMaxSteps(r.opts.maxSteps)
	}
	if r.opts.numCtx > 0 {
		builder = builder.WithNumCtx(r.opts.numCtx)
	}

	return builder.Build(context.Background())
}

func (r *repl) approver() engine.Approver {
	if r.opts.approveAll {
		return engine.AutoApprover{}
	}
	terminal := &terminalApprover{in: r.stdin}
	if r.opts.confirmReads {
		return terminal
	}
	return engine.ReadOnlyAutoApprover{Inner: terminal}
}

func (r *repl) newSession() *session.Session {
	return &session.Session{
		ID:       uuid.NewString(),
		RepoPath: r.opts.repoRoot,
	}
}

// loadProjectRules reads an optional AGENTS.md at the repo root.
func loadProjectRules(repoRoot string) string {
	data, err := os.ReadFile(filepath.Join(repoRoot, "AGENTS.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

func (r *repl) loop() error {
	fmt.Printf("ollama-code: %s on %s (type /help for commands)\n", r.opts.model, r.opts.repoRoot)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			r.mu.Lock()
			cancel := r.turnCancel
			r.mu.Unlock()
			if cancel != nil {
				cancel()
			} else {
				fmt.Println(noticeStyle.Render("\ninterrupted (use /exit to quit)"))
			}
		}
	}()

	for {
		fmt.Print(promptStyle.Render("you> "))
		line, err := r.stdin.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(line); quit {
				break
			}
			continue
		}

		r.runTurn(line)
	}

	r.finishSession()
	fmt.Println("bye")
	return nil
}

func (r *repl) runTurn(input string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.turnCancel = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		r.turnCancel = nil
		r.mu.Unlock()
	}()

	if err := r.agent.Run(ctx, input); err != nil {
		switch {
		case errors.Is(err, engine.ErrRunAborted):
			fmt.Println(noticeStyle.Render("turn aborted"))
		case errors.Is(err, context.Canceled):
			fmt.Println(noticeStyle.Render("\nturn cancelled"))
		default:
			printError(err)
		}
	}
	fmt.Println()

	r.saveSession()
}

func (r *repl) saveSession() {
	history := r.agent.History()
	if len(history) == 0 {
		return
	}
	r.sess.History = history

	if r.sess.Title == "" {
		r.sess.Title = r.generateTitle(history)
	}
	if err := r.store.Save(r.sess); err != nil {
		fmt.Println(noticeStyle.Render("warning: could not save session: " + err.Error()))
	}
}

// generateTitle asks the model for a short title, falling back to the
// first user message when the call fails.
func (r *repl) generateTitle(history []engine.ChatMessage) string {
	summarizer := session.NewSummarizer(r.llm, r.agent.Model())
	title, err := summarizer.GenerateTitle(context.Background(), history)
	if err == nil && title != "" {
		return title
	}
	for _, msg := range history {
		if msg.Role == engine.RoleUser {
			return truncateLine(msg.Content, 48)
		}
	}
	return "New Session"
}

// finishSession persists the final history with an LLM summary so the
// next /resume starts with context.
func (r *repl) finishSession() {
	history := r.agent.History()
	// A session with no assistant turns is not worth summarizing.
	if len(history) < 4 {
		r.saveSession()
		return
	}
	summarizer := session.NewSummarizer(r.llm, r.agent.Model())
	if summary, err := summarizer.GenerateSummary(context.Background(), history); err == nil {
		r.sess.Summary = summary
	}
	r.saveSession()
}

func (r *repl) handleCommand(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Print(`commands:
  /clear           start a fresh conversation
  /model [name]    list available models or switch
  /cd <dir>        change the repository root
  /sessions        list saved sessions for this repo
  /resume <id>     restore a saved session
  /exit            save and leave
`)

	case "/clear":
		r.finishSession()
		r.agent.ClearHistory()
		r.sess = r.newSession()
		fmt.Println("conversation cleared")

	case "/model":
		r.cmdModel(args)

	case "/cd":
		if len(args) == 0 {
			fmt.Println(noticeStyle.Render("usage: /cd <dir>"))
			return false
		}
		r.cmdCd(args[0])

	case "/sessions":
		r.cmdSessions()

	case "/resume":
		if len(args) == 0 {
			fmt.Println(noticeStyle.Render("usage: /resume <id>"))
			return false
		}
		r.cmdResume(args[0])

	default:
		fmt.Println(noticeStyle.Render("unknown command " + cmd + " (try /help)"))
	}
	return false
}

func (r *repl) cmdModel(args []string) {
	if len(args) == 0 {
		oc, ok := r.llm.(*providers.OllamaClient)
		if !ok {
			fmt.Printf("current model: %s (listing only supported for ollama)\n", r.agent.Model())
			return
		}
		names, err := oc.ListModels(context.Background())
		if err != nil {
			printError(err)
			return
		}
		for _, name := range names {
			marker := "  "
			if name == r.agent.Model() {
				marker = "* "
			}
			fmt.Println(marker + name)
		}
		return
	}

	name := args[0]
	llm, model, err := providers.NewLLMClient(r.opts.provider, r.opts.baseURL, name, r.opts.apiKey)
	if err != nil {
		printError(err)
		return
	}
	if oc, ok := llm.(*providers.OllamaClient); ok {
		if err := oc.Ping(context.Background(), model); err != nil {
			printError(err)
			return
		}
	}
	r.llm = llm
	r.opts.model = model
	r.agent.SetLLM(llm, model)
	fmt.Printf("switched to %s\n", model)
}

func (r *repl) cmdCd(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		printError(err)
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		printError(fmt.Errorf("not a directory: %s", abs))
		return
	}

	history := r.agent.History()
	r.opts.repoRoot = abs
	agent, err := r.buildAgent(abs)
	if err != nil {
		printError(err)
		return
	}
	r.agent = agent
	if len(history) > 0 {
		r.agent.SetHistory(history)
	}
	r.sess.RepoPath = abs
	r.sess.RepoHash = ""
	fmt.Printf("repository root is now %s\n", abs)
}

func (r *repl) cmdSessions() {
	metas, err := r.store.List(r.opts.repoRoot)
	if err != nil {
		printError(err)
		return
	}
	if len(metas) == 0 {
		fmt.Println("no saved sessions for this repository")
		return
	}
	for _, m := range metas {
		fmt.Printf("  %s  %s  %s\n", m.ID[:8], m.UpdatedAt.Local().Format("2006-01-02 15:04"), m.Title)
	}
}

func (r *repl) cmdResume(id string) {
	full, err := r.resolveSessionID(id)
	if err != nil {
		printError(err)
		return
	}
	sess, err := r.store.Load(full, r.opts.repoRoot)
	if err != nil {
		printError(err)
		return
	}

	r.sess = sess
	r.agent.SetHistory(sess.History)
	fmt.Printf("resumed %q (%d messages)\n", sess.Title, len(sess.History))
	if sess.Summary != "" {
		fmt.Println(toolStyle.Render(sess.Summary))
	}
}

// resolveSessionID accepts a full id or a unique prefix.
func (r *repl) resolveSessionID(id string) (string, error) {
	metas, err := r.store.List(r.opts.repoRoot)
	if err != nil {
		return "", err
	}
	var match string
	for _, m := range metas {
		if m.ID == id {
			return id, nil
		}
		if strings.HasPrefix(m.ID, id) {
			if match != "" {
				return "", fmt.Errorf("session id %q is ambiguous", id)
			}
			match = m.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matching %q", id)
	}
	return match, nil
}
