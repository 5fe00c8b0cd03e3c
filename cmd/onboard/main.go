package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/alikamatu/artisan-app-sub002/config"
	"github.com/alikamatu/artisan-app-sub002/internal/api"
	"github.com/alikamatu/artisan-app-sub002/internal/auth"
	"github.com/alikamatu/artisan-app-sub002/internal/model"
	"github.com/alikamatu/artisan-app-sub002/internal/onboarding"
	"github.com/alikamatu/artisan-app-sub002/internal/steps"
	"github.com/alikamatu/artisan-app-sub002/internal/upload"
	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
	"github.com/alikamatu/artisan-app-sub002/pkg/logger"
	"github.com/alikamatu/artisan-app-sub002/pkg/metrics"
	"github.com/alikamatu/artisan-app-sub002/pkg/otel"
	"github.com/alikamatu/artisan-app-sub002/pkg/snowflake"
)

const usage = `Usage: onboard <command> [flags]

Commands:
  login     Store a bearer token (--token, --remember)
  status    Fetch onboarding status and show the active step
  submit    Submit a step (--role, --step, --data step.json, --file field=path ...)
  complete  Run the completion transaction (--data extra.json)
`

func main() {
	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	// 可观测性：endpoint 配置了才导出
	if config.Cfg.OTLPEndpoint != "" {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName,
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTLPEndpoint,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Logger.Error("OpenTelemetry shutdown failed", zap.Error(err))
				}
			}()
			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
			}
		}
	}

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	engine, err := buildEngine()
	if err != nil {
		logger.Logger.Fatal("Failed to initialize onboarding engine", zap.Error(err))
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(ctx, engine, os.Args[1], os.Args[2:]); err != nil {
		if pkgerrors.IsAuthTerminal(err) {
			// 顶层处理：会话终结，提示重新登录
			fmt.Fprintln(os.Stderr, "Session is no longer valid, please login again.")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type engine struct {
	session    *auth.Session
	controller *onboarding.Controller
}

func buildEngine() (*engine, error) {
	persistent, err := auth.NewFileStore(config.Cfg.TokenDir, config.Cfg.TokenFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	session := auth.NewSession(persistent, auth.NewMemStore(), auth.WithLogger(logger.Logger))
	session.OnExpire(func() {
		fmt.Fprintln(os.Stderr, "Session expired, tokens cleared.")
	})

	apiClient, err := api.NewClient(
		strings.TrimRight(config.Cfg.APIBaseURL, "/"),
		config.Cfg.DialTimeout,
		config.Cfg.RequestTimeout,
		api.WithLogger(logger.Logger),
	)
	if err != nil {
		return nil, err
	}

	pipeline := upload.NewPipeline(apiClient, session, upload.DefaultOptions(), logger.Logger)
	controller := onboarding.NewController(apiClient, session, pipeline, logger.Logger)

	return &engine{session: session, controller: controller}, nil
}

func run(ctx context.Context, eng *engine, command string, args []string) error {
	switch command {
	case "login":
		return runLogin(eng, args)
	case "status":
		return runStatus(ctx, eng)
	case "submit":
		return runSubmit(ctx, eng, args)
	case "complete":
		return runComplete(ctx, eng, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runLogin(eng *engine, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "bearer token issued at login")
	remember := fs.Bool("remember", config.Cfg.RememberMe, "persist the token across sessions")
	_ = fs.Parse(args)

	if *token == "" {
		return fmt.Errorf("--token is required")
	}
	if err := eng.session.Save(*token, *remember); err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	fmt.Println("Token stored.")
	return nil
}

func runStatus(ctx context.Context, eng *engine) error {
	if err := eng.controller.FetchStatus(ctx); err != nil {
		return err
	}
	printStatus(eng.controller)
	return nil
}

func runSubmit(ctx context.Context, eng *engine, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	role := fs.String("role", "", "onboarding role (client or worker)")
	step := fs.String("step", "", "step name")
	dataPath := fs.String("data", "", "path to the step payload JSON file")
	var fileFields fileFieldList
	fs.Var(&fileFields, "file", "attach a file as field=path (repeatable, field+ suffix appends to a list)")
	_ = fs.Parse(args)

	if *role == "" || *step == "" {
		return fmt.Errorf("--role and --step are required")
	}

	data, err := loadStepData(*dataPath, fileFields)
	if err != nil {
		return err
	}

	ok, err := eng.controller.UpdateStep(ctx, model.Role(*role), model.StepName(*step), data)
	if err != nil {
		return err
	}
	if ok {
		fmt.Println("Step acknowledged.")
		printStatus(eng.controller)
	}
	return nil
}

func runComplete(ctx context.Context, eng *engine, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	dataPath := fs.String("data", "", "path to extra completion payload JSON file")
	_ = fs.Parse(args)

	extra := model.StepData{}
	if *dataPath != "" {
		if err := readJSONFile(*dataPath, &extra); err != nil {
			return err
		}
	}

	done, err := eng.controller.CompleteOnboarding(ctx, extra)
	if err != nil {
		return err
	}
	if done {
		fmt.Println("Onboarding completed.")
	} else {
		fmt.Println("Completion not confirmed yet, fetch status again later.")
	}
	return nil
}

func printStatus(controller *onboarding.Controller) {
	status, state, lastErr := controller.Progress().Snapshot()
	if state == onboarding.StateNotLoaded || status == nil {
		fmt.Println("No status loaded yet.")
		return
	}
	if lastErr != nil {
		fmt.Println("Showing last known status (latest fetch failed).")
	}

	if !status.Role.Valid() {
		fmt.Println("Role not selected yet.")
		return
	}

	idx := controller.Progress().ActiveStepIndex()
	fmt.Printf("Role: %s  Completed: %v\n", status.Role, status.Completed)
	for _, def := range steps.Definitions(status.Role) {
		marker := " "
		if status.Progress[def.Name] {
			marker = "x"
		}
		cursor := "  "
		if def.Order == idx {
			cursor = "> "
		}
		fmt.Printf("%s[%s] %d. %s\n", cursor, marker, def.Order, def.Name)
	}
}

// fileFieldList 收集 --file field=path 形式的参数。
// 字段名以 + 结尾时按列表字段追加（如 portfolio+=a.jpg）。
type fileFieldList []string

func (f *fileFieldList) String() string { return strings.Join(*f, ",") }

func (f *fileFieldList) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected field=path, got %q", v)
	}
	*f = append(*f, v)
	return nil
}

func loadStepData(dataPath string, fileFields fileFieldList) (model.StepData, error) {
	data := model.StepData{}
	if dataPath != "" {
		if err := readJSONFile(dataPath, &data); err != nil {
			return nil, err
		}
	}

	lists := map[string][]model.UploadField{}
	for _, entry := range fileFields {
		parts := strings.SplitN(entry, "=", 2)
		field, path := parts[0], parts[1]

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		uploadField := model.PendingFile(&model.File{Name: path, Data: content})

		if name, isList := strings.CutSuffix(field, "+"); isList {
			lists[name] = append(lists[name], uploadField)
		} else {
			data[field] = uploadField
		}
	}
	for name, fields := range lists {
		data[name] = fields
	}

	return data, nil
}

func readJSONFile(path string, out interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
