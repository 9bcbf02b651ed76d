package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/cortexai/opsinsight/internal/metrics"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/narrative"
	"github.com/cortexai/opsinsight/internal/security"
	"github.com/cortexai/opsinsight/internal/service"
	"github.com/rs/zerolog/log"
)

const unexpectedErrorMessage = "An unexpected error occurred while answering the question. Please try again later."

// KnowledgeSearcher finds knowledge-base documents for a question.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, size int) (*models.KnowledgeSearchResponse, error)
}

// Deps are the external collaborators. Only Model and Store are needed for
// database answers; Files and Knowledge may be nil.
type Deps struct {
	Model     Model
	Store     service.Store
	Files     service.FileProvider
	Knowledge KnowledgeSearcher
}

// Question is one incoming request.
type Question struct {
	Text       string
	Preference string // "file", "database", "both" or empty
	APIKey     string // audit only
}

// Orchestrator answers questions end to end.
type Orchestrator struct {
	settings  Settings
	validator *security.PromptValidator
	pii       *security.PIIDetector
	router    *service.IntentRouter
	synth     *Synthesizer
	exec      *Executor
	composer  *narrative.Composer
	files     service.FileProvider
	knowledge KnowledgeSearcher
	audit     *security.AuditLogger
}

// NewOrchestrator wires the pipeline. Settings are copied and not changed
// afterwards.
func NewOrchestrator(settings Settings, deps Deps) *Orchestrator {
	s := settings.withDefaults()

	gate := security.NewSQLGate(s.AllowedTables)
	audit := security.NewAuditLogger(s.AuditEnabled)
	var masker *security.DataMasker
	if s.EnableMasking {
		masker = security.NewDataMasker(s.SensitiveColumns)
	}

	dialect := ""
	if deps.Store != nil {
		dialect = deps.Store.Dialect()
	}

	return &Orchestrator{
		settings:  s,
		validator: security.NewPromptValidator(s.MaxQuestionLength),
		pii:       security.NewPIIDetector(s.PIIKeywords),
		router:    service.NewIntentRouter(),
		synth: &Synthesizer{
			model:   deps.Model,
			dialect: dialect,
			schema: &schemaPrompt{
				desc:       s.Schema,
				store:      deps.Store,
				gate:       gate,
				withCounts: s.SchemaRowCounts,
				cache:      newSchemaCache(s.SchemaCacheTTL),
			},
		},
		exec: NewExecutor(deps.Store, gate, masker, audit),
		composer: narrative.NewComposer(deps.Model, narrative.Options{
			RowCap:         s.ResultRowCap,
			ChartMarker:    s.ChartMarker,
			SummaryHeading: s.SummaryHeading,
		}),
		files:     deps.Files,
		knowledge: deps.Knowledge,
		audit:     audit,
	}
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings { return o.settings }

// Executor returns the gated executor, shared with the direct query endpoint.
func (o *Orchestrator) Executor() *Executor { return o.exec }

// Ask answers one question. It always returns a response; panics inside the
// pipeline become an error response.
func (o *Orchestrator) Ask(ctx context.Context, q Question) (resp *Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("pipeline panic recovered")
			resp = errorResponse(unexpectedErrorMessage)
		}
		metrics.Responses.WithLabelValues(string(resp.Type)).Inc()
		metrics.PipelineDuration.WithLabelValues(string(resp.Type)).Observe(time.Since(start).Seconds())
		o.audit.LogQuestion(q.Text, q.APIKey, string(resp.Type), len(resp.SQLResults), resp.Type != TypeError, time.Since(start).Milliseconds())
	}()

	return o.answer(ctx, q)
}

func (o *Orchestrator) answer(ctx context.Context, q Question) *Response {
	if res := o.validator.Validate(q.Text); !res.Valid {
		log.Warn().Str("reason", res.Message).Msg("question rejected")
		return errorResponse("Question rejected: " + res.Message)
	}
	if found, kw := o.pii.Detect(q.Text); found {
		log.Warn().Str("keyword", kw).Msg("question asks for personal data")
		return errorResponse(fmt.Sprintf("Question rejected: personal information (%s) cannot be queried.", kw))
	}

	var file *service.File
	hasFile := false
	if o.files != nil {
		file, hasFile = o.files.Current(ctx)
	}

	intent := service.ResolveIntent(q.Text, hasFile)
	if intent == service.IntentViewFile {
		log.Info().Str("intent", string(intent)).Str("file", file.Name).Msg("question routed")
		return o.viewFile(q, file)
	}

	pref := service.ResolvePreference(q.Text, hasFile, q.Preference)
	log.Info().
		Str("intent", string(intent)).
		Str("preference", string(pref)).
		Bool("has_file", hasFile).
		Msg("question routed")

	if hasFile && pref == service.PreferFile {
		return o.analyzeFile(ctx, q, file)
	}

	var attachment *service.File
	if hasFile && pref == service.PreferBoth {
		attachment = file
	}

	if intent == service.IntentKnowledgeOrDB && attachment == nil && o.knowledge != nil {
		route := o.router.Route(q.Text)
		log.Debug().
			Str("source", string(route.Source)).
			Float64("confidence", route.Confidence).
			Str("reasoning", route.Reasoning).
			Msg("knowledge routing")
		if route.Source == service.DataSourceKnowledge {
			if resp := o.answerFromKnowledge(ctx, q); resp != nil {
				return resp
			}
		}
	}

	return o.answerFromDatabase(ctx, q, attachment)
}

func (o *Orchestrator) answerFromDatabase(ctx context.Context, q Question, attachment *service.File) *Response {
	plan, err := o.synth.Synthesize(ctx, q.Text)
	if errors.Is(err, ErrModelUnavailable) {
		return &Response{Type: TypeError, Content: narrative.Apology}
	}
	if err != nil {
		log.Error().Err(err).Msg("synthesis failed")
		return errorResponse(unexpectedErrorMessage)
	}

	fileName := ""
	if attachment != nil {
		fileName = attachment.Name
	}

	if len(plan.Statements) == 0 {
		text := plan.Analysis
		if text == "" {
			text = plan.Explanation
		}
		if text == "" {
			text = "The question could not be answered from the available data."
		}
		return &Response{
			Type:     TypeGeneral,
			Content:  o.composer.Polish(ctx, narrative.Input{Question: q.Text}, text),
			FileName: fileName,
		}
	}

	batch := o.exec.Execute(ctx, plan.Statements)
	names := plan.Names()
	charts := chart.Synthesize(plan.Visualization, names, batch.Results)
	for _, c := range charts {
		metrics.Charts.WithLabelValues(string(c.Type)).Inc()
	}

	in := narrative.Input{
		Question:    q.Text,
		Explanation: plan.Explanation,
		Tables:      narrative.Tables(batch.Results, names),
		Charts:      charts,
	}
	if attachment != nil {
		addAttachment(&in, attachment)
	}
	content, _ := o.composer.Compose(ctx, in)

	return &Response{
		Type:       TypeDatabaseQuery,
		Content:    content,
		FileName:   fileName,
		Charts:     charts,
		SQLResults: sqlResults(plan, batch),
	}
}

func (o *Orchestrator) answerFromKnowledge(ctx context.Context, q Question) *Response {
	res, err := o.knowledge.Search(ctx, q.Text, o.settings.KnowledgeResults)
	if err != nil {
		log.Warn().Err(err).Msg("knowledge search failed, using database")
		return nil
	}
	if len(res.Sources) == 0 {
		log.Info().Msg("no knowledge hits, using database")
		return nil
	}

	docs := make([]narrative.Document, len(res.Sources))
	for i, s := range res.Sources {
		docs[i] = narrative.Document{Title: s.Title, Body: s.Snippet}
	}
	content, _ := o.composer.Compose(ctx, narrative.Input{Question: q.Text, Documents: docs})
	return &Response{Type: TypeKnowledgeBase, Content: content, Sources: res.Sources}
}

func addAttachment(in *narrative.Input, f *service.File) {
	switch f.Kind {
	case service.FileTabular:
		in.Tables = append(in.Tables, narrative.NamedTable{Name: "uploaded file " + f.Name, Table: f.Table})
	default:
		in.Documents = append(in.Documents, narrative.Document{Title: f.Name, Body: f.Text})
	}
}
