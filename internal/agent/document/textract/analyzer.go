// Package textract implements document.LayoutAnalyzer on AWS Textract and
// renders its blocks as markdown.
package textract

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// featureLayout is spelled out so older SDK enums still compile.
const featureLayout = types.FeatureType("LAYOUT")

// API is the subset of the Textract client the analyzer uses.
type API interface {
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	StartDocumentAnalysis(ctx context.Context, params *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, params *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

type Config struct {
	MinConfidence float32
	EnableTables  bool
	EnableForms   bool
	PollInterval  time.Duration
	PollTimeout   time.Duration
}

type Analyzer struct {
	client API
	cfg    Config
	logger logger.Logger
}

// NewAnalyzer builds a Textract client from static credentials, or from the
// default AWS credential chain when no keys are configured.
func NewAnalyzer(ctx context.Context, cfg *config.TextractConfig, log logger.Logger) (*Analyzer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("textract: %w", models.ErrNotConfigured)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewAnalyzerWithClient(client, Config{
		MinConfidence: float32(cfg.MinConfidence),
		EnableTables:  cfg.EnableTables,
		EnableForms:   cfg.EnableForms,
		PollInterval:  cfg.PollInterval,
		PollTimeout:   cfg.PollTimeout,
	}, log), nil
}

func NewAnalyzerWithClient(client API, cfg Config, log logger.Logger) *Analyzer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Minute
	}
	return &Analyzer{
		client: client,
		cfg:    cfg,
		logger: log.Named("textract"),
	}
}

func (a *Analyzer) AnalyzeDocument(ctx context.Context, in document.DocumentInput, opts document.AnalyzeOptions) (*document.AnalyzeResult, error) {
	start := time.Now()
	features := a.featureTypes(opts)

	var (
		blocks []types.Block
		err    error
	)
	switch {
	case in.Location != nil && in.Location.Provider == "s3" && in.Location.Bucket != "":
		blocks, err = a.analyzeAsync(ctx, in.Location, features)
	case len(features) == 0:
		blocks, err = a.detectText(ctx, in.Bytes)
	default:
		blocks, err = a.analyzeSync(ctx, in.Bytes, features)
	}
	if err != nil {
		return nil, err
	}

	r := newRenderer(blocks, a.cfg.MinConfidence)
	var content string
	if opts.OutputFormat == document.OutputMarkdown {
		content = r.Markdown()
	} else {
		content = r.PlainText()
	}

	a.logger.Debug("Textract analysis finished",
		logger.String("file", in.Name),
		logger.Int("blocks", len(blocks)),
		logger.Int("pages", r.pages),
		logger.Duration("duration", time.Since(start)),
	)

	return &document.AnalyzeResult{Content: content, Pages: r.pages}, nil
}

func (a *Analyzer) featureTypes(opts document.AnalyzeOptions) []types.FeatureType {
	var features []types.FeatureType
	if a.cfg.EnableTables {
		features = append(features, types.FeatureTypeTables)
	}
	if a.cfg.EnableForms {
		features = append(features, types.FeatureTypeForms)
	}
	// layout blocks drive markdown headings and page furniture removal
	if opts.HasFeature(document.FeatureOCRHighResolution) {
		features = append(features, featureLayout)
	}
	return features
}

func (a *Analyzer) analyzeSync(ctx context.Context, data []byte, features []types.FeatureType) ([]types.Block, error) {
	out, err := a.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: data},
		FeatureTypes: features,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze document: %w", err)
	}
	return out.Blocks, nil
}

func (a *Analyzer) detectText(ctx context.Context, data []byte) ([]types.Block, error) {
	out, err := a.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}
	return out.Blocks, nil
}

// analyzeAsync runs a multi-page analysis job against an object in S3 and
// collects every result page.
func (a *Analyzer) analyzeAsync(ctx context.Context, loc *document.Location, features []types.FeatureType) ([]types.Block, error) {
	if len(features) == 0 {
		features = []types.FeatureType{featureLayout}
	}

	started, err := a.client.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(loc.Bucket),
				Name:   aws.String(loc.Key),
			},
		},
		FeatureTypes: features,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start document analysis: %w", err)
	}
	jobID := aws.ToString(started.JobId)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var (
		blocks    []types.Block
		nextToken *string
	)
	for {
		out, err := a.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:     aws.String(jobID),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get document analysis %s: %w", jobID, err)
		}

		switch out.JobStatus {
		case types.JobStatusInProgress:
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return nil, fmt.Errorf("document analysis %s: %w", jobID, ctx.Err())
			}
		case types.JobStatusFailed:
			return nil, fmt.Errorf("document analysis %s failed: %s", jobID, aws.ToString(out.StatusMessage))
		case types.JobStatusPartialSuccess:
			a.logger.Warn("Document analysis partially succeeded",
				logger.String("jobId", jobID),
				logger.String("message", aws.ToString(out.StatusMessage)),
			)
		}

		blocks = append(blocks, out.Blocks...)
		if out.NextToken == nil {
			return blocks, nil
		}
		nextToken = out.NextToken
	}
}
