// Command agentrun is the pipeline entry point (C11): it loads a YAML
// configuration, wires the Tool Manager, LLM Client, Stream Bus, and Task
// Logger, runs the Main Orchestrator against one task, and prints the
// result. It is a full rewrite of the reference corpus's cmd/demo idiom
// (construct components, run, print) since that program's workflow-engine
// plumbing was dropped in favor of this module's own component set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/model/anthropic"
	"github.com/agentrt/miroflow-go/agent/model/bedrock"
	"github.com/agentrt/miroflow-go/agent/model/openai"
	"github.com/agentrt/miroflow-go/agent/session/inmem"
	"github.com/agentrt/miroflow-go/config"
	"github.com/agentrt/miroflow-go/orchestrator"
	"github.com/agentrt/miroflow-go/ratelimit"
	"github.com/agentrt/miroflow-go/retry"
	"github.com/agentrt/miroflow-go/stream"
	"github.com/agentrt/miroflow-go/tasklog"
	"github.com/agentrt/miroflow-go/telemetry"
	"github.com/agentrt/miroflow-go/toolmanager"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pipeline configuration file")
	task := flag.String("task", "", "the task description to run")
	useClue := flag.Bool("telemetry", false, "emit structured logs/metrics/traces via Clue instead of discarding them")
	flag.Parse()

	if *task == "" {
		log.Fatal("agentrun: -task is required")
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("agentrun: reading config: %v", err)
	}
	cfg, err := config.Load(data)
	if err != nil {
		log.Fatalf("agentrun: %v", err)
	}

	tel := telemetry.Noop()
	if *useClue {
		tel = telemetry.NewClueBundle()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workflowID := uuid.NewString()
	taskLog := tasklog.New(workflowID, *task, cfg.Log.Dir)
	hostname, _ := os.Hostname()
	taskLog.EnvInfo = map[string]any{
		"hostname": hostname, "go_version": runtime.Version(), "os": runtime.GOOS,
		"arch": runtime.GOARCH, "pid": os.Getpid(), "started_at": taskLog.StartTime,
	}

	client, err := newLLMClient(ctx, *cfg, taskLog)
	if err != nil {
		log.Fatalf("agentrun: building LLM client: %v", err)
	}
	defer client.Close()

	tools := toolmanager.New(ctx, cfg.ToolServers, tel)
	defer tools.Close()

	sink, closeSink := newStreamSink(*cfg, workflowID)
	defer closeSink(ctx)

	emit(ctx, sink, tel, stream.StartOfWorkflow{
		Base: stream.NewBase(stream.EventStartOfWorkflow, workflowID, stream.StartOfWorkflowPayload{}),
		Data: stream.StartOfWorkflowPayload{WorkflowID: workflowID, Input: *task},
	})

	sessions := inmem.New()

	result, runErr := orchestrator.Run(ctx, orchestrator.Config{
		WorkflowID:     workflowID,
		MainRole:       cfg.Agent.MainAgent,
		SubAgents:      cfg.Agent.SubAgents,
		KeepToolResult: *cfg.LLM.KeepToolResult,
	}, orchestrator.Deps{
		Client:    client,
		Tools:     tools,
		Sessions:  sessions,
		TaskLog:   taskLog,
		Sink:      sink,
		Telemetry: tel,
	}, *task)

	status := "success"
	switch {
	case result.Cancelled:
		status = "cancelled"
		taskLog.LogStep("error", "Pipeline | Run", "pipeline run cancelled by host", nil)
	case runErr != nil:
		status = "error"
		taskLog.LogStep("error", "Pipeline | Run", runErr.Error(), nil)
	}
	taskLog.Finish(status)

	display, logLine := client.FormatTokenUsageSummary()
	usage := client.Usage()
	taskLog.RecordLLMCall(tasklog.LLMCallLog{
		Provider:            cfg.LLM.Provider,
		Model:               cfg.LLM.ModelName,
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheWriteTokens,
	})
	tel.Log.Info(ctx, "token usage", "summary", logLine)

	emit(ctx, sink, tel, stream.EndOfWorkflow{
		Base: stream.NewBase(stream.EventEndOfWorkflow, workflowID, stream.EndOfWorkflowPayload{}),
		Data: stream.EndOfWorkflowPayload{WorkflowID: workflowID},
	})

	path, saveErr := taskLog.Save()
	if saveErr != nil {
		tel.Log.Error(ctx, "saving task log failed", "error", saveErr.Error())
	} else {
		tel.Log.Info(ctx, "task log saved", "path", path)
	}

	if runErr != nil {
		fmt.Println(display)
		log.Fatalf("agentrun: %v", runErr)
	}

	fmt.Println(result.BoxedAnswer)
	fmt.Println(display)
}

// newLLMClient selects and constructs the provider adapter named by
// cfg.LLM.Provider, wiring the shared rate limiter and retry policy every
// adapter accepts, plus the step logger adapters report dropped tools and
// failed calls to.
func newLLMClient(ctx context.Context, cfg config.Config, stepLog model.StepLogger) (model.Client, error) {
	limiter := ratelimit.New(cfg.LLM.RateLimitRPS, cfg.LLM.RateLimitBurst)
	policy := retry.DefaultPolicy()

	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.LLM.APIKey, cfg.LLM.ModelName, anthropic.Options{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Limiter:     limiter,
			RetryPolicy: policy,
			StepLogger:  stepLog,
		})
	case "openai", "openai_compat":
		return openai.NewFromAPIKey(cfg.LLM.APIKey, cfg.LLM.ModelName, openai.Options{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Limiter:     limiter,
			RetryPolicy: policy,
			StepLogger:  stepLog,
		})
	case "bedrock":
		return bedrock.NewFromRegion(ctx, cfg.LLM.Region, cfg.LLM.ModelName, bedrock.Options{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: float32(cfg.LLM.Temperature),
			Limiter:     limiter,
			RetryPolicy: policy,
			StepLogger:  stepLog,
		})
	default:
		return nil, fmt.Errorf("unsupported llm.provider %q", cfg.LLM.Provider)
	}
}

// newStreamSink builds a Redis-backed sink when cfg.Log.RedisStreamURL is
// set (stream key "agentrun:<workflowID>"), falling back to an in-process
// channel sink otherwise. The returned close func always tears down whatever
// this function opened.
func newStreamSink(cfg config.Config, workflowID string) (stream.Sink, func(context.Context) error) {
	if cfg.Log.RedisStreamURL != "" {
		opts, err := redis.ParseURL(cfg.Log.RedisStreamURL)
		if err == nil {
			rc := redis.NewClient(opts)
			sink := stream.NewRedisSink(rc, "agentrun:"+workflowID)
			return sink, func(context.Context) error { return rc.Close() }
		}
		log.Printf("agentrun: invalid log.redis_stream_url %q, falling back to in-process sink: %v", cfg.Log.RedisStreamURL, err)
	}
	sink := stream.NewChannelSink(256)
	return sink, sink.Close
}

func emit(ctx context.Context, sink stream.Sink, tel telemetry.Bundle, ev stream.Event) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, ev); err != nil {
		tel.Log.Warn(ctx, "stream sink send failed", "error", err.Error(), "event_type", string(ev.Type()))
	}
}
