package client

import (
	"fmt"
	"strings"
)

// ModelType identifies the kind of EPM model to generate data for
type ModelType string

const (
	ModelFinancialPlanning ModelType = "FinancialPlanning"
	ModelSalesAnalysis     ModelType = "SalesAnalysis"
	ModelHRHeadcount       ModelType = "HR_Headcount"
)

// DataPattern names a measure generation pattern understood by the backend
type DataPattern string

const (
	PatternSeasonalPeakQ4     DataPattern = "seasonal_peak_q4"
	PatternLinearIncrease     DataPattern = "linear_increase"
	PatternRandom             DataPattern = "random"
	PatternNormalDistribution DataPattern = "normal_distribution"
)

// Dimension is a named dimension with its member list
type Dimension struct {
	Name       string         `json:"name" yaml:"name"`
	Members    []any          `json:"members" yaml:"members"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// DependencyRule is a business rule such as "Revenue = Price * Quantity"
type DependencyRule struct {
	Type               string         `json:"type" yaml:"type"`
	Formula            string         `json:"formula,omitempty" yaml:"formula,omitempty"`
	InvolvedDimensions []string       `json:"involved_dimensions" yaml:"involved_dimensions"`
	Target             string         `json:"target,omitempty" yaml:"target,omitempty"`
	Parameters         map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// MeasureSettings holds per-measure distribution parameters
type MeasureSettings struct {
	Distribution string   `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Min          *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev       *float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`
}

// DataSettings controls the size and shape of the generated data
type DataSettings struct {
	NumRecords      int                        `json:"num_records" yaml:"num_records"`
	Sparsity        float64                    `json:"sparsity" yaml:"sparsity"`
	DataPatterns    map[string]DataPattern     `json:"data_patterns,omitempty" yaml:"data_patterns,omitempty"`
	RandomSeed      *int64                     `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
	MeasureSettings map[string]MeasureSettings `json:"measure_settings,omitempty" yaml:"measure_settings,omitempty"`
}

// GenerationConfig describes one generation job
type GenerationConfig struct {
	ModelType    ModelType        `json:"model_type" yaml:"model_type"`
	Dimensions   []Dimension      `json:"dimensions" yaml:"dimensions"`
	Dependencies []DependencyRule `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Settings     DataSettings     `json:"settings" yaml:"settings"`
}

// Validate checks the request against the constraints the backend enforces,
// so that obviously bad requests fail before a stream is opened.
func (g *GenerationConfig) Validate() error {
	var problems []string

	switch g.ModelType {
	case ModelFinancialPlanning, ModelSalesAnalysis, ModelHRHeadcount:
	case "":
		problems = append(problems, "model_type is required")
	default:
		problems = append(problems, fmt.Sprintf("unsupported model_type %q", g.ModelType))
	}

	if len(g.Dimensions) == 0 {
		problems = append(problems, "at least one dimension is required")
	}
	for i, d := range g.Dimensions {
		if strings.TrimSpace(d.Name) == "" {
			problems = append(problems, fmt.Sprintf("dimensions[%d]: name is required", i))
		}
	}

	for i, dep := range g.Dependencies {
		if dep.Type == "" {
			problems = append(problems, fmt.Sprintf("dependencies[%d]: type is required", i))
		}
		if len(dep.InvolvedDimensions) == 0 {
			problems = append(problems, fmt.Sprintf("dependencies[%d]: involved_dimensions needs at least one entry", i))
		}
	}

	if g.Settings.NumRecords <= 0 {
		problems = append(problems, "settings.num_records must be greater than 0")
	}
	if g.Settings.Sparsity < 0 || g.Settings.Sparsity > 1 {
		problems = append(problems, "settings.sparsity must be between 0 and 1")
	}
	for measure, p := range g.Settings.DataPatterns {
		switch p {
		case PatternSeasonalPeakQ4, PatternLinearIncrease, PatternRandom, PatternNormalDistribution:
		default:
			problems = append(problems, fmt.Sprintf("settings.data_patterns[%s]: unsupported pattern %q", measure, p))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid generation config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GenerationResponse is the body of a one-shot /generate call
type GenerationResponse struct {
	Message     string           `json:"message"`
	PreviewData []map[string]any `json:"preview_data"`
	Errors      []string         `json:"errors"`
}

// HealthStatus is the body of the root health check
type HealthStatus struct {
	Message string `json:"message"`
}

// AnalysisResult is the structural hypothesis returned by /upload-analyze:
// candidate dimension columns with their inferred roles and sample members.
type AnalysisResult struct {
	Dimensions []map[string]any `json:"dimensions"`
	Commentary string           `json:"commentary"`
	Errors     []string         `json:"errors"`
}

// SuggestedStructure wraps the /suggest-structure reply
type SuggestedStructure struct {
	SuggestedStructure map[string]any `json:"suggested_structure"`
}
