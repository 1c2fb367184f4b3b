package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ppiankov/entrole/internal/llm"
	"github.com/ppiankov/entrole/internal/model"
)

// Rubric is the weighting the judge is asked to apply
const Rubric = "评分0~1：\n" +
	"- 结构合法性 0.2\n" +
	"- 角色正确性 0.4\n" +
	"- filter 正确性 0.4\n" +
	"错误进入 publishDate 一律扣分。"

// JudgeGuide lists the distinctions the judge should check
const JudgeGuide = "角色判断要点：\n" +
	"- 机构: subject(查询主体) vs publisher(发布机构)\n" +
	"- 人物: author(作者) vs subject(主体)\n" +
	"- 时间: content_descriptor / filter_time / prediction_time / context\n" +
	"- 时间不要误当 publishDate 过滤\n"

// JudgePrompt is the default judge template.
// Placeholders: goal, question, entities, output, rubric, guide.
const JudgePrompt = "你是评分器。\n" +
	"目标: {goal}\n" +
	"用户问句: {question}\n" +
	"已识别实体: {entities}\n" +
	"模型输出: {output}\n" +
	"评分规则: {rubric}\n" +
	"{guide}\n" +
	"只输出0~1小数。"

// Gate spaces judge calls against the shared model budget
type Gate interface {
	Wait(ctx context.Context) error
}

// JudgeInput is what the judge sees for one prediction
type JudgeInput struct {
	Goal     string
	Question string
	Entities *model.EntityBundle
	Output   string
}

// JudgeOptions configures a Judge
type JudgeOptions struct {
	Model       string
	Temperature float64
	Template    *llm.Template
	Gate        Gate
	Logger      *slog.Logger
}

// Judge grades output with a language model when no gold is available. Its
// scores are not reproducible; use it only where nothing better exists.
type Judge struct {
	provider    llm.Provider
	model       string
	temperature float64
	template    *llm.Template
	gate        Gate
	logger      *slog.Logger
}

// NewJudge creates a judge backed by provider
func NewJudge(provider llm.Provider, opts JudgeOptions) *Judge {
	if opts.Template == nil {
		opts.Template = llm.NewTemplate("judge", JudgePrompt)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Judge{
		provider:    provider,
		model:       opts.Model,
		temperature: opts.Temperature,
		template:    opts.Template,
		gate:        opts.Gate,
		logger:      opts.Logger,
	}
}

// Score asks the model for a grade in [0,1]. Any failure, including an
// unparseable answer, scores 0.
func (j *Judge) Score(ctx context.Context, in JudgeInput) float64 {
	score, err := j.Evaluate(ctx, in)
	if err != nil {
		j.logger.Warn("judge failed, scoring 0", "question", in.Question, "error", err)
		return 0
	}
	return score
}

// Evaluate is Score with the failure reported. Parse failures still score 0
// without an error; only the model call can fail.
func (j *Judge) Evaluate(ctx context.Context, in JudgeInput) (float64, error) {
	if j.provider == nil {
		return 0, errors.New("judge: no model provider configured")
	}

	prompt, err := j.Prompt(in)
	if err != nil {
		return 0, err
	}

	if j.gate != nil {
		if err := j.gate.Wait(ctx); err != nil {
			return 0, fmt.Errorf("wait for pacer: %w", err)
		}
	}

	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Model:       j.model,
		Temperature: llm.Float(j.temperature),
	})
	if err != nil {
		return 0, fmt.Errorf("judge: %w", err)
	}
	if resp == nil {
		return 0, fmt.Errorf("judge: %w", llm.ErrEmptyResponse)
	}

	score := ParseJudgeScore(resp.Content)
	j.logger.Debug("judge scored output", "question", in.Question, "raw", resp.Content, "score", score)
	return score, nil
}

// Prompt renders the judge prompt for in
func (j *Judge) Prompt(in JudgeInput) (string, error) {
	entities := ""
	if in.Entities != nil {
		data, err := marshalCompact(in.Entities)
		if err != nil {
			return "", fmt.Errorf("judge: %w", err)
		}
		entities = data
	}

	vars := llm.MergeVars(llm.FallbackVars(in.Goal), map[string]string{
		"question": in.Question,
		"entities": entities,
		"output":   in.Output,
		"rubric":   Rubric,
		"guide":    JudgeGuide,
	})
	return j.template.Format(vars), nil
}

// ParseJudgeScore reads a judge answer as a number clamped to [0,1];
// anything else is 0
func ParseJudgeScore(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return clamp(f)
}
